package ledger

import (
	"math/big"

	"gildchain/core/types"
)

// VirtualBalance computes the up-to-date balance of the account at the given
// time, including interest accrued since the last realization. It never
// mutates the record. A zero principal yields zero regardless of elapsed
// time; a clock reading earlier than the last realization aborts with
// ErrClockRegression.
func VirtualBalance(account *types.Account, now uint64) (*big.Int, error) {
	if account == nil {
		return big.NewInt(0), nil
	}
	account.Normalize()
	if now < account.LastAccrualTime {
		return nil, ErrClockRegression
	}
	if account.Principal.Sign() == 0 {
		return big.NewInt(0), nil
	}
	factor := accumulationFactor(account.LockedRate, now-account.LastAccrualTime)
	return scaleByFactor(account.Principal, factor), nil
}

// realize folds interest accrued up to now into the stored principal and
// stamps the record with the realization time. It returns the materialized
// interest, which the caller must treat as an implicit mint when tracking
// aggregate supply. Calling realize twice at the same instant changes state
// only on the first call.
//
// Every mutating operation must realize each account it touches before
// applying its own principal change, so the rate/timestamp snapshot used here
// always reflects pre-mutation state.
func realize(account *types.Account, now uint64) (*big.Int, error) {
	virtual, err := VirtualBalance(account, now)
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(virtual, account.Principal)
	if delta.Sign() > 0 {
		account.Principal.Add(account.Principal, delta)
	} else {
		delta.SetInt64(0)
	}
	// The timestamp moves forward even when no interest accrued, so a
	// zero-principal account re-entering circulation starts its accrual
	// clock at the mutation that funds it.
	account.LastAccrualTime = now
	return delta, nil
}
