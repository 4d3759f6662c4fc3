package ledger

import (
	"bytes"
	"math/big"
	"sync"
	"time"

	"gildchain/core/events"
	"gildchain/core/types"
)

// Roles consumed by the privileged entry points. Grant decisions live with
// the external authorizer; the engine only asks yes/no questions.
const (
	RoleMinter    = "MINTER_GILD"
	RoleRateAdmin = "RATE_ADMIN_GILD"
)

// ledgerState is the narrow persistence surface the engine requires. It is
// satisfied by the core/state manager and by in-memory fakes in tests.
//
// Begin, Commit and Discard bracket a mutation: writes issued between Begin
// and Commit must become durable together or not at all, and reads in that
// window must observe the staged writes. Discard after a Commit is a no-op.
type ledgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	BaseRate() (*big.Int, error)
	SetBaseRate(rate *big.Int) error
	TotalSupply() (*big.Int, error)
	SetTotalSupply(supply *big.Int) error
	Allowance(owner, spender []byte) (*big.Int, error)
	SetAllowance(owner, spender []byte, amount *big.Int) error
	Begin()
	Commit() error
	Discard()
}

// Authorizer answers capability questions for privileged operations.
type Authorizer interface {
	HasRole(role string, addr []byte) bool
}

// Clock supplies monotonically non-decreasing unix timestamps.
type Clock func() uint64

// Engine realizes accrued interest and applies principal changes atomically.
// A single mutex sequences every operation, mutating or not, so a transfer
// touching two accounts and a rate change touching global state can never be
// observed half-applied and reads always see a consistent snapshot.
type Engine struct {
	mu      sync.Mutex
	state   ledgerState
	auth    Authorizer
	clock   Clock
	emitter events.Emitter
}

// NewEngine constructs a ledger engine. Persistence and authorization are
// wired afterwards via SetState and SetAuthorizer.
func NewEngine() *Engine {
	return &Engine{
		clock:   func() uint64 { return uint64(time.Now().Unix()) },
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state ledgerState) { e.state = state }

// SetAuthorizer wires the capability oracle used by privileged operations.
func (e *Engine) SetAuthorizer(auth Authorizer) {
	if e == nil {
		return
	}
	e.auth = auth
}

// SetClock overrides the time source. Tests use this to drive accrual
// deterministically.
func (e *Engine) SetClock(clock Clock) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetEmitter wires the event sink. A nil emitter silently discards events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) hasRole(role string, addr []byte) bool {
	if e.auth == nil {
		return false
	}
	return e.auth.HasRole(role, addr)
}

// BalanceOf returns the virtual balance of the address as of now, interest
// included, without mutating state.
func (e *Engine) BalanceOf(addr []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return VirtualBalance(account, e.clock())
}

// PrincipalOf returns the raw stored principal, excluding unrealized
// interest. Collaborators that must not trigger realization audit through
// this endpoint.
func (e *Engine) PrincipalOf(addr []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Principal), nil
}

// UserRate returns the rate the address is locked in at.
func (e *Engine) UserRate(addr []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.LockedRate), nil
}

// TotalSupply returns the aggregate realized principal.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TotalSupply()
}

// Allowance returns the remaining spending allowance owner has granted to
// spender.
func (e *Engine) Allowance(owner, spender []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Allowance(owner, spender)
}

// Approve sets the allowance spender may move out of owner's balance.
// Granting MaxTransferAmount marks the allowance infinite; delegated
// transfers leave it undecremented.
func (e *Engine) Approve(owner, spender []byte, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.state.SetAllowance(owner, spender, amount); err != nil {
		return err
	}
	e.emit(events.Approval{Owner: toFixed(owner), Spender: toFixed(spender), Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from one account to the other, realizing accrual on
// both sides first. MaxTransferAmount resolves to the sender's full virtual
// balance, unrealized interest included.
func (e *Engine) Transfer(from, to []byte, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// One clock reading per operation. Resolving the max sentinel and
	// realizing accrual at different instants would strand interest dust
	// in a supposedly drained sender.
	now := e.clock()

	e.state.Begin()
	defer e.state.Discard()
	resolved, err := e.transferLocked(from, to, amount, now)
	if err != nil {
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(events.Transfer{From: toFixed(from), To: toFixed(to), Amount: resolved})
	return nil
}

// TransferFrom moves amount out of from on behalf of spender, consuming
// spender's allowance. The allowance check precedes any state change so a
// refused spend leaves both accounts untouched, and the allowance decrement
// commits together with the account moves.
func (e *Engine) TransferFrom(spender, from, to []byte, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()

	e.state.Begin()
	defer e.state.Discard()
	resolved, err := e.resolveAmount(from, amount, now)
	if err != nil {
		return err
	}
	allowance, err := e.state.Allowance(from, spender)
	if err != nil {
		return err
	}
	infinite := allowance.Cmp(MaxTransferAmount) == 0
	if !infinite && allowance.Cmp(resolved) < 0 {
		return ErrInsufficientAllowance
	}
	if _, err := e.transferLocked(from, to, resolved, now); err != nil {
		return err
	}
	if !infinite {
		remaining := new(big.Int).Sub(allowance, resolved)
		if err := e.state.SetAllowance(from, spender, remaining); err != nil {
			return err
		}
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(events.Transfer{From: toFixed(from), To: toFixed(to), Amount: resolved})
	return nil
}

// resolveAmount maps the max sentinel to the sender's virtual balance as of
// now and validates the result.
func (e *Engine) resolveAmount(from []byte, amount *big.Int, now uint64) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(MaxTransferAmount) != 0 {
		return new(big.Int).Set(amount), nil
	}
	account, err := e.state.GetAccount(from)
	if err != nil {
		return nil, err
	}
	return VirtualBalance(account, now)
}

// transferLocked stages the account moves for a transfer at the instant now
// and returns the resolved amount. The caller owns the mutex, the staging
// bracket and the event emission.
func (e *Engine) transferLocked(from, to []byte, amount *big.Int, now uint64) (*big.Int, error) {
	resolved, err := e.resolveAmount(from, amount, now)
	if err != nil {
		return nil, err
	}

	sender, err := e.state.GetAccount(from)
	if err != nil {
		return nil, err
	}
	senderDelta, err := realize(sender, now)
	if err != nil {
		return nil, err
	}
	if sender.Principal.Cmp(resolved) < 0 {
		return nil, ErrInsufficientBalance
	}

	if bytes.Equal(from, to) {
		// Self-transfer degenerates to a lone realization; the amount
		// moves nowhere.
		if err := e.state.PutAccount(from, sender); err != nil {
			return nil, err
		}
		if err := e.growSupply(senderDelta); err != nil {
			return nil, err
		}
		return resolved, nil
	}

	recipient, err := e.state.GetAccount(to)
	if err != nil {
		return nil, err
	}
	recipientDelta, err := realize(recipient, now)
	if err != nil {
		return nil, err
	}
	// A holder with a live balance keeps their locked rate no matter what
	// arrives; only a drained or fresh account adopts the sender's rate.
	if recipient.Principal.Sign() == 0 {
		recipient.LockedRate.Set(sender.LockedRate)
	}

	sender.Principal.Sub(sender.Principal, resolved)
	recipient.Principal.Add(recipient.Principal, resolved)

	if err := e.state.PutAccount(from, sender); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(to, recipient); err != nil {
		return nil, err
	}
	realized := new(big.Int).Add(senderDelta, recipientDelta)
	if err := e.growSupply(realized); err != nil {
		return nil, err
	}
	return resolved, nil
}

// growSupply folds realized interest, an implicit mint, into the aggregate
// supply tally.
func (e *Engine) growSupply(delta *big.Int) error {
	if delta == nil || delta.Sign() == 0 {
		return nil
	}
	supply, err := e.state.TotalSupply()
	if err != nil {
		return err
	}
	return e.state.SetTotalSupply(supply.Add(supply, delta))
}

func (e *Engine) emit(event events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func toFixed(addr []byte) [20]byte {
	var fixed [20]byte
	copy(fixed[:], addr)
	return fixed
}
