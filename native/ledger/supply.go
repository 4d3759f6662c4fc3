package ledger

import (
	"math/big"

	"gildchain/core/events"
)

// Mint credits amount of new principal to the recipient. The caller must hold
// the minter role. Accrual is realized first; the requested rate is locked in
// only when the realized principal is zero, so an existing holder's rate can
// never be overwritten by a mint, whatever rate the caller supplies. Bridge
// completions pass the rate recorded on the origin ledger, fresh deposits
// pass the current base rate.
func (e *Engine) Mint(caller, recipient []byte, amount, rateToLock *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if !e.hasRole(RoleMinter, caller) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if rateToLock == nil || rateToLock.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()

	e.state.Begin()
	defer e.state.Discard()
	account, err := e.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	delta, err := realize(account, now)
	if err != nil {
		return err
	}
	if account.Principal.Sign() == 0 {
		account.LockedRate.Set(rateToLock)
	}
	account.Principal.Add(account.Principal, amount)

	if err := e.state.PutAccount(recipient, account); err != nil {
		return err
	}
	minted := new(big.Int).Add(delta, amount)
	if err := e.growSupply(minted); err != nil {
		return err
	}
	supply, err := e.state.TotalSupply()
	if err != nil {
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(events.Mint{
		Recipient:  toFixed(recipient),
		Amount:     new(big.Int).Set(amount),
		LockedRate: new(big.Int).Set(account.LockedRate),
		Supply:     supply,
	})
	return nil
}

// Burn retires amount of realized principal from the holder. The caller must
// hold the minter role. Accrual is realized first so interest earned up to
// this instant is burnable.
func (e *Engine) Burn(caller, holder []byte, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if !e.hasRole(RoleMinter, caller) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()

	e.state.Begin()
	defer e.state.Discard()
	account, err := e.state.GetAccount(holder)
	if err != nil {
		return err
	}
	delta, err := realize(account, now)
	if err != nil {
		return err
	}
	if account.Principal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	account.Principal.Sub(account.Principal, amount)

	if err := e.state.PutAccount(holder, account); err != nil {
		return err
	}
	// Realized interest grows supply, the burn shrinks it; apply the net.
	net := new(big.Int).Sub(delta, amount)
	supply, err := e.state.TotalSupply()
	if err != nil {
		return err
	}
	supply.Add(supply, net)
	if supply.Sign() < 0 {
		supply.SetInt64(0)
	}
	if err := e.state.SetTotalSupply(supply); err != nil {
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.emit(events.Burn{
		Holder: toFixed(holder),
		Amount: new(big.Int).Set(amount),
		Supply: new(big.Int).Set(supply),
	})
	return nil
}
