package trade

import (
	"math"

	"github.com/vetexchange/vetex/internal/units"
)

// TradeView is the merged, display-ready projection of one trade.
// It is ephemeral and rebuilt on every load. On-chain fields are
// always sourced from the chain; cache-sourced fields are advisory
// display extras and are never used to gate actions.
type TradeView struct {
	Trade

	// Derived from on-chain data plus the token registry.
	TokenSymbol   string `json:"tokenSymbol"`
	TokenDecimals uint8  `json:"tokenDecimals"`
	AmountDisplay string `json:"amountDisplay"`
	FiatLabel     string `json:"fiatLabel"`
	BuyerDisplay  string `json:"buyerDisplay"`
	RefDisplay    string `json:"paymentRefDisplay"`

	// Advisory, cache-sourced.
	SellerContact string `json:"sellerContact"`
	UnitPrice     int64  `json:"unitPrice,omitempty"`
}

// Meta is the advisory slice of a cached listing the resolver consumes.
type Meta struct {
	SellerSNS string
	UnitPrice int64
}

// Contact is the on-chain seller contact record.
type Contact struct {
	KakaoID    string
	TelegramID string
	Registered bool
}

// Display returns the joined contact line, or "" if nothing is set.
func (c Contact) Display() string {
	switch {
	case c.KakaoID != "" && c.TelegramID != "":
		return "kakao: " + c.KakaoID + " / tg: " + c.TelegramID
	case c.KakaoID != "":
		return "kakao: " + c.KakaoID
	case c.TelegramID != "":
		return "tg: " + c.TelegramID
	default:
		return ""
	}
}

// buildView merges the authoritative on-chain trade with advisory cache
// metadata. The on-chain record is applied last so a racing cache read
// can never overwrite chain state, regardless of fetch completion order.
func buildView(t *Trade, meta *Meta, symbol string, decimals uint8, contact string) *TradeView {
	v := &TradeView{
		TokenSymbol:   symbol,
		TokenDecimals: decimals,
		SellerContact: "-",
	}

	// Advisory layer first.
	if meta != nil {
		if meta.SellerSNS != "" {
			v.SellerContact = meta.SellerSNS
		}
		v.UnitPrice = meta.UnitPrice
	}

	// On-chain contact record wins over the cached string.
	if contact != "" {
		v.SellerContact = contact
	}

	// Authoritative layer last: every on-chain field, including status,
	// overwrites whatever the cache claimed.
	v.Trade = *t

	v.AmountDisplay = units.Format(t.Amount, decimals)
	v.FiatLabel = t.Fiat.String()

	v.BuyerDisplay = "unassigned"
	if t.BuyerAssigned() {
		v.BuyerDisplay = t.Buyer
	}
	v.RefDisplay = "none"
	if t.HasPaymentRef() {
		v.RefDisplay = t.PaymentRef
	}

	if v.UnitPrice == 0 {
		v.UnitPrice = DeriveUnitPrice(t, decimals)
	}

	return v
}

// DeriveUnitPrice computes the per-token fiat price from on-chain
// fields: round(fiatAmount / amount). Returns 0 when either side is
// missing or the amount is zero.
func DeriveUnitPrice(t *Trade, decimals uint8) int64 {
	if t.Amount == nil || t.FiatAmount == nil || t.Amount.Sign() <= 0 {
		return 0
	}
	amt := units.Float(t.Amount, decimals)
	if amt <= 0 {
		return 0
	}
	fiat := units.Float(t.FiatAmount, 0)
	return int64(math.Round(fiat / amt))
}
