package ledger

import "errors"

var (
	// ErrRateCanOnlyDecrease rejects base rate updates that do not strictly
	// lower the current global rate.
	ErrRateCanOnlyDecrease = errors.New("ledger: base rate can only decrease")
	// ErrUnauthorized rejects privileged calls from addresses lacking the
	// required role.
	ErrUnauthorized = errors.New("ledger: caller not authorized")
	// ErrInsufficientBalance rejects burns and transfers exceeding the
	// realized principal of the debited account.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInsufficientAllowance rejects delegated transfers exceeding the
	// spender's remaining allowance.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	// ErrClockRegression signals that the clock source reported a time
	// earlier than an account's last accrual timestamp. The operation must
	// abort rather than compute a wrapped elapsed interval.
	ErrClockRegression = errors.New("ledger: clock regressed before last accrual")
	// ErrInvalidAmount rejects nil or negative amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrRateNotInitialized signals that the ledger has no persisted base
	// rate yet and must be initialised before rate administration.
	ErrRateNotInitialized = errors.New("ledger: base rate not initialised")

	errNilState = errors.New("ledger: state not configured")
)
