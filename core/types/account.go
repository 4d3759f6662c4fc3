package types

import "math/big"

// Account is the durable ledger record for a single GILD holder. Principal
// excludes interest that has accrued since LastAccrualTime; the locked rate is
// fixed whenever the balance last moved from zero to non-zero.
type Account struct {
	Nonce uint64 `json:"nonce"`
	// Principal is the stored balance in base units, excluding any interest
	// not yet realized.
	Principal *big.Int `json:"principal"`
	// LockedRate is the per-second interest rate this account earns at,
	// scaled by the wad precision factor.
	LockedRate *big.Int `json:"lockedRate"`
	// LastAccrualTime is the unix timestamp at which Principal was last
	// brought fully up to date.
	LastAccrualTime uint64 `json:"lastAccrualTime"`
}

// NewAccount returns a zero-valued account record. Implicit creation on first
// reference means a fresh record is indistinguishable from a fully drained one.
func NewAccount() *Account {
	return &Account{
		Principal:  big.NewInt(0),
		LockedRate: big.NewInt(0),
	}
}

// Normalize backfills nil big.Int fields so callers can operate on the record
// without nil checks.
func (a *Account) Normalize() {
	if a.Principal == nil {
		a.Principal = big.NewInt(0)
	}
	if a.LockedRate == nil {
		a.LockedRate = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account record.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Nonce:           a.Nonce,
		LastAccrualTime: a.LastAccrualTime,
		Principal:       big.NewInt(0),
		LockedRate:      big.NewInt(0),
	}
	if a.Principal != nil {
		clone.Principal.Set(a.Principal)
	}
	if a.LockedRate != nil {
		clone.LockedRate.Set(a.LockedRate)
	}
	return clone
}
