package events

import (
	"math/big"

	"gildchain/core/types"
	"gildchain/crypto"
)

const (
	// TypeTransfer is emitted for GILD principal movements between accounts.
	TypeTransfer = "ledger.transfer"
	// TypeMint is emitted whenever the supply gateway credits new principal.
	TypeMint = "ledger.mint"
	// TypeBurn is emitted whenever the supply gateway retires principal.
	TypeBurn = "ledger.burn"
	// TypeRateChanged is emitted on every accepted base rate update.
	TypeRateChanged = "ledger.rate_changed"
	// TypeApproval is emitted when a spending allowance is granted or reset.
	TypeApproval = "ledger.approval"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.MustNewAddress(crypto.GildPrefix, e.From[:]).String(),
		"to":     crypto.MustNewAddress(crypto.GildPrefix, e.To[:]).String(),
		"amount": formatAmount(e.Amount),
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Mint struct {
	Recipient  [20]byte
	Amount     *big.Int
	LockedRate *big.Int
	Supply     *big.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	attrs := map[string]string{
		"recipient":  crypto.MustNewAddress(crypto.GildPrefix, e.Recipient[:]).String(),
		"amount":     formatAmount(e.Amount),
		"lockedRate": formatAmount(e.LockedRate),
		"supply":     formatAmount(e.Supply),
	}
	return &types.Event{Type: TypeMint, Attributes: attrs}
}

type Burn struct {
	Holder [20]byte
	Amount *big.Int
	Supply *big.Int
}

func (Burn) EventType() string { return TypeBurn }

func (e Burn) Event() *types.Event {
	attrs := map[string]string{
		"holder": crypto.MustNewAddress(crypto.GildPrefix, e.Holder[:]).String(),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}
	return &types.Event{Type: TypeBurn, Attributes: attrs}
}

type RateChanged struct {
	OldRate *big.Int
	NewRate *big.Int
}

func (RateChanged) EventType() string { return TypeRateChanged }

func (e RateChanged) Event() *types.Event {
	attrs := map[string]string{
		"oldRate": formatAmount(e.OldRate),
		"newRate": formatAmount(e.NewRate),
	}
	return &types.Event{Type: TypeRateChanged, Attributes: attrs}
}

type Approval struct {
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	attrs := map[string]string{
		"owner":   crypto.MustNewAddress(crypto.GildPrefix, e.Owner[:]).String(),
		"spender": crypto.MustNewAddress(crypto.GildPrefix, e.Spender[:]).String(),
		"amount":  formatAmount(e.Amount),
	}
	return &types.Event{Type: TypeApproval, Attributes: attrs}
}
