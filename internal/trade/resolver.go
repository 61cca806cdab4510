package trade

import (
	"context"
	"errors"
	"fmt"

	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/tokens"
	"github.com/vetexchange/vetex/internal/traces"
)

// ErrNotFound means the contract has no trade at the requested id.
var ErrNotFound = errors.New("trade not found")

// ChainReader is the authoritative source for trade state.
type ChainReader interface {
	GetTrade(ctx context.Context, id uint64) (*Trade, error)
	GetSellerContact(ctx context.Context, seller string) (Contact, error)
	TokenDecimals(ctx context.Context, token string) (uint8, error)
}

// MetaSource supplies advisory listing metadata for display. A failing
// or empty source never fails a resolve.
type MetaSource interface {
	TradeMeta(ctx context.Context, id uint64) (*Meta, error)
}

// Resolver builds TradeViews by merging chain state with cache metadata.
type Resolver struct {
	chain ChainReader
	meta  MetaSource
	reg   *tokens.Registry
}

func NewResolver(chain ChainReader, meta MetaSource, reg *tokens.Registry) *Resolver {
	return &Resolver{chain: chain, meta: meta, reg: reg}
}

// Resolve fetches the trade from chain and the advisory metadata from
// the cache, then merges them with the chain record applied last. The
// chain fetch is mandatory; every other input degrades to a fallback.
func (r *Resolver) Resolve(ctx context.Context, id uint64) (*TradeView, error) {
	ctx, span := traces.StartSpan(ctx, "trade.resolve", traces.TradeID(id))
	defer span.End()
	log := logging.FromContext(ctx)

	t, err := r.chain.GetTrade(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get trade %d: %w", id, err)
	}
	if t.Seller == ZeroAddress {
		return nil, fmt.Errorf("trade %d: %w", id, ErrNotFound)
	}

	var meta *Meta
	if r.meta != nil {
		meta, err = r.meta.TradeMeta(ctx, id)
		if err != nil {
			log.Debug("trade metadata unavailable", "trade_id", id, "error", err)
			meta = nil
		}
	}

	symbol, decimals := r.tokenInfo(ctx, t.Token)

	contact := ""
	c, err := r.chain.GetSellerContact(ctx, t.Seller)
	if err != nil {
		log.Debug("seller contact lookup failed", "trade_id", id, "error", err)
	} else if c.Registered {
		contact = c.Display()
	}

	return buildView(t, meta, symbol, decimals, contact), nil
}

// tokenInfo resolves symbol and decimals, preferring the registry and
// falling back to an on-chain decimals() call for unlisted tokens.
func (r *Resolver) tokenInfo(ctx context.Context, token string) (string, uint8) {
	if tok, ok := r.reg.ByAddress(token); ok {
		return tok.Symbol, tok.Decimals
	}
	dec, err := r.chain.TokenDecimals(ctx, token)
	if err != nil {
		return "-", r.reg.FallbackDecimals()
	}
	return "-", dec
}
