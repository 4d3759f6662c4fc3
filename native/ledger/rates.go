package ledger

import (
	"fmt"
	"math/big"

	"gildchain/core/events"
)

// BaseRate returns the current global base rate.
func (e *Engine) BaseRate() (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rate, err := e.state.BaseRate()
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, ErrRateNotInitialized
	}
	return rate, nil
}

// InitializeBaseRate writes the genesis base rate. On a ledger that already
// carries a rate the call only succeeds when the supplied value matches or
// lowers it; the decrease-only history must hold across restarts.
func (e *Engine) InitializeBaseRate(rate *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if rate == nil || rate.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	current, err := e.state.BaseRate()
	if err != nil {
		return err
	}
	if current == nil {
		return e.state.SetBaseRate(rate)
	}
	if rate.Cmp(current) > 0 {
		return fmt.Errorf("%w: persisted %s, configured %s", ErrRateCanOnlyDecrease, current, rate)
	}
	if rate.Cmp(current) == 0 {
		return nil
	}
	return e.state.SetBaseRate(rate)
}

// SetBaseRate lowers the global base rate. The caller must hold the rate
// admin role and the new value must be strictly smaller than the current one;
// locked rates already held by accounts are never touched.
func (e *Engine) SetBaseRate(caller []byte, newRate *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if !e.hasRole(RoleRateAdmin, caller) {
		return ErrUnauthorized
	}
	if newRate == nil || newRate.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.state.BaseRate()
	if err != nil {
		return err
	}
	if current == nil {
		return ErrRateNotInitialized
	}
	if newRate.Cmp(current) >= 0 {
		return fmt.Errorf("%w: current %s, proposed %s", ErrRateCanOnlyDecrease, current, newRate)
	}
	if err := e.state.SetBaseRate(newRate); err != nil {
		return err
	}
	e.emit(events.RateChanged{
		OldRate: new(big.Int).Set(current),
		NewRate: new(big.Int).Set(newRate),
	})
	return nil
}
