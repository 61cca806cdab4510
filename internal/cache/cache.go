// Package cache is the untrusted listing index. It exists so the
// listing board can render without walking the chain, and so sellers
// can attach off-chain metadata (contact handles, unit prices) to
// their trades. Nothing in here is authoritative: the resolver and the
// aggregator always overwrite cached state with on-chain reads before
// anything user-facing depends on it.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vetexchange/vetex/internal/trade"
)

var (
	ErrListingNotFound = errors.New("cache: listing not found")
	ErrProfileNotFound = errors.New("cache: profile not found")
)

// GlobalPartition indexes every trade regardless of escrow contract.
const GlobalPartition = "trades"

// ContractPartition returns the partition scoped to one escrow
// contract deployment.
func ContractPartition(contract string) string {
	return "trades_" + strings.ToLower(contract)
}

// Listing is a cached, display-oriented snapshot of a trade. Status is
// whatever the writer last observed and may be stale.
type Listing struct {
	TradeID    uint64             `json:"tradeId"`
	Seller     string             `json:"seller"`
	Token      string             `json:"token"`
	Symbol     string             `json:"symbol"`
	Amount     string             `json:"amount"`
	Decimals   uint8              `json:"decimals"`
	Fiat       trade.FiatCurrency `json:"fiat"`
	FiatAmount int64              `json:"fiatAmount"`
	UnitPrice  int64              `json:"unitPrice"`
	SellerSNS  string             `json:"sellerSns"`
	Status     trade.Status       `json:"status"`

	// Provenance of the on-chain open: the transaction that created the
	// trade and the block it landed in.
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile is a seller's off-chain payment and contact details, keyed by
// lowercased address.
type Profile struct {
	Address    string    `json:"address"`
	KakaoID    string    `json:"kakaoId"`
	TelegramID string    `json:"telegramId"`
	MeetPlace  string    `json:"meetPlace"`
	KRBank     string    `json:"krBank"`
	KRAccount  string    `json:"krAccount"`
	VNBank     string    `json:"vnBank"`
	VNAccount  string    `json:"vnAccount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasContact reports whether at least one messenger handle is set.
// Posting a trade requires this so buyers can reach the seller.
func (p *Profile) HasContact() bool {
	return p.KakaoID != "" || p.TelegramID != ""
}

// SNS joins the messenger handles into the display string listings
// carry.
func (p *Profile) SNS() string {
	switch {
	case p.KakaoID != "" && p.TelegramID != "":
		return "kakao: " + p.KakaoID + " / tg: " + p.TelegramID
	case p.KakaoID != "":
		return "kakao: " + p.KakaoID
	case p.TelegramID != "":
		return "tg: " + p.TelegramID
	default:
		return ""
	}
}

// Store persists listings and profiles. UpsertListing assigns
// UpdatedAt server-side so writers cannot forge freshness.
type Store interface {
	UpsertListing(ctx context.Context, partition string, l *Listing) error
	GetListing(ctx context.Context, partition string, tradeID uint64) (*Listing, error)
	ListListings(ctx context.Context, partition string, limit int) ([]*Listing, error)
	UpdateListingStatus(ctx context.Context, partition string, tradeID uint64, status trade.Status) error

	UpsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, address string) (*Profile, error)

	Ping(ctx context.Context) error
	Close() error
}
