// Package trade defines the trade lifecycle domain model: the on-chain
// trade record, the merged client-side view, and the action gate.
//
// Lifecycle, as assigned by the escrow contract (this package only
// reads it):
//
//	OPEN → TAKEN → PAID → RELEASED        (terminal, success)
//	OPEN | TAKEN → CANCELED               (terminal, seller cancel)
//	any non-terminal → DISPUTED → RESOLVED (terminal, arbitrated)
package trade

import (
	"math/big"
	"strings"
)

// Sentinel values used by the contract for "unset".
const (
	ZeroAddress = "0x0000000000000000000000000000000000000000"
	ZeroHash    = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

// Status is the trade lifecycle state.
type Status uint8

const (
	StatusOpen     Status = 0
	StatusTaken    Status = 1
	StatusPaid     Status = 2
	StatusReleased Status = 3
	StatusCanceled Status = 4
	StatusDisputed Status = 5
	StatusResolved Status = 6
)

var statusLabels = [...]string{"OPEN", "TAKEN", "PAID", "RELEASED", "CANCELED", "DISPUTED", "RESOLVED"}

// String returns the display label for the status.
func (s Status) String() string {
	if int(s) < len(statusLabels) {
		return statusLabels[s]
	}
	return "UNKNOWN"
}

// IsTerminal reports whether the trade can make no further progress.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReleased, StatusCanceled, StatusResolved:
		return true
	}
	return false
}

// FiatCurrency is the settlement currency enum.
type FiatCurrency uint8

const (
	FiatKRW FiatCurrency = 0
	FiatVND FiatCurrency = 1
)

// String returns the ISO currency code.
func (f FiatCurrency) String() string {
	switch f {
	case FiatKRW:
		return "KRW"
	case FiatVND:
		return "VND"
	default:
		return "-"
	}
}

// Trade is the authoritative on-chain trade record. Account and token
// addresses are lowercased 0x hex strings; Amount is in the token's
// smallest unit; FiatAmount is in whole currency units (neither
// supported currency uses decimals).
type Trade struct {
	ID         uint64       `json:"tradeId"`
	Seller     string       `json:"seller"`
	Buyer      string       `json:"buyer"`
	Token      string       `json:"token"`
	Amount     *big.Int     `json:"amount"`
	FiatAmount *big.Int     `json:"fiatAmount"`
	PaymentRef string       `json:"paymentRef"`
	CreatedAt  uint64       `json:"createdAt"`
	PaidAt     uint64       `json:"paidAt"`
	Fiat       FiatCurrency `json:"fiat"`
	Status     Status       `json:"status"`
}

// BuyerAssigned reports whether a buyer has accepted (or been
// pre-assigned to) the trade. The contract stores the zero address
// until acceptance.
func (t *Trade) BuyerAssigned() bool {
	return t.Buyer != "" && !strings.EqualFold(t.Buyer, ZeroAddress)
}

// HasPaymentRef reports whether the buyer recorded a payment reference.
// The contract stores the zero hash until markPaid supplies one.
func (t *Trade) HasPaymentRef() bool {
	return t.PaymentRef != "" && !strings.EqualFold(t.PaymentRef, ZeroHash)
}

// IsSeller reports whether actor is the trade's seller. Identifier
// comparison is case-insensitive.
func (t *Trade) IsSeller(actor string) bool {
	return actor != "" && strings.EqualFold(actor, t.Seller)
}

// IsBuyer reports whether actor is the trade's assigned buyer.
func (t *Trade) IsBuyer(actor string) bool {
	return actor != "" && t.BuyerAssigned() && strings.EqualFold(actor, t.Buyer)
}

// IsParty reports whether actor is either side of the trade.
func (t *Trade) IsParty(actor string) bool {
	return t.IsSeller(actor) || t.IsBuyer(actor)
}
