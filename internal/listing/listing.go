// Package listing builds the public trade board. The board is served
// from the cache for speed, but the status column is always refreshed
// from chain before display so a stale cache can never show a dead
// trade as open. When the cache yields nothing the board falls back to
// walking the contract's trades directly.
package listing

import (
	"context"
	"sort"
	"sync"

	"github.com/vetexchange/vetex/internal/cache"
	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/circuitbreaker"
	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/tokens"
	"github.com/vetexchange/vetex/internal/traces"
	"github.com/vetexchange/vetex/internal/trade"
	"github.com/vetexchange/vetex/internal/units"
)

// Sources a page can come from.
const (
	SourceCache = "cache"
	SourceChain = "chain"
	SourceEmpty = "empty"
)

// Row is one board entry, fully rendered for display.
type Row struct {
	TradeID    uint64       `json:"tradeId"`
	Seller     string       `json:"seller"`
	Token      string       `json:"token"`
	Symbol     string       `json:"symbol"`
	Amount     string       `json:"amount"`
	Fiat       string       `json:"fiat"`
	FiatAmount int64        `json:"fiatAmount"`
	UnitPrice  int64        `json:"unitPrice"`
	SellerSNS  string       `json:"sellerSns"`
	Status     string       `json:"status"`
	StatusCode trade.Status `json:"statusCode"`
}

// Page is the assembled board plus where its rows came from.
type Page struct {
	Rows   []Row  `json:"rows"`
	Source string `json:"source"`
}

// ChainSource is the slice of the chain client the aggregator needs.
type ChainSource interface {
	GetTrade(ctx context.Context, id uint64) (*trade.Trade, error)
	NextTradeID(ctx context.Context) (uint64, error)
	TokenDecimals(ctx context.Context, token string) (uint8, error)
	FilterTradeOpened(ctx context.Context, fromBlock, toBlock uint64, seller string) ([]chain.TradeOpenedEvent, error)
}

// Aggregator assembles board pages from the cache and the chain.
type Aggregator struct {
	store    cache.Store
	chain    ChainSource
	reg      *tokens.Registry
	breaker  *circuitbreaker.Breaker
	contract string

	// Limit caps rows per page; OverrideLimit caps how many rows get a
	// live status read before display.
	Limit         int
	OverrideLimit int
}

func NewAggregator(store cache.Store, chain ChainSource, reg *tokens.Registry, breaker *circuitbreaker.Breaker, contract string, limit, overrideLimit int) *Aggregator {
	if limit <= 0 {
		limit = 30
	}
	if overrideLimit <= 0 {
		overrideLimit = 30
	}
	return &Aggregator{
		store:         store,
		chain:         chain,
		reg:           reg,
		breaker:       breaker,
		contract:      contract,
		Limit:         limit,
		OverrideLimit: overrideLimit,
	}
}

// Load assembles one board page. It never returns an error: cache and
// chain failures degrade to the next source, and when everything fails
// the page is empty with SourceEmpty so the caller can say so rather
// than render nothing silently.
func (a *Aggregator) Load(ctx context.Context) Page {
	ctx, span := traces.StartSpan(ctx, "board.load")
	defer span.End()
	log := logging.FromContext(ctx)

	listings := a.fromCache(ctx)
	if len(listings) > 0 {
		rows := a.render(listings)
		a.overrideStatuses(ctx, rows)
		metrics.ListingsTotal.WithLabelValues(SourceCache).Inc()
		return Page{Rows: rows, Source: SourceCache}
	}

	rows, err := a.fromChain(ctx)
	if err != nil {
		log.Warn("board chain fallback failed", "error", err)
	}
	if len(rows) > 0 {
		metrics.ListingsTotal.WithLabelValues(SourceChain).Inc()
		return Page{Rows: rows, Source: SourceChain}
	}

	metrics.ListingsTotal.WithLabelValues(SourceEmpty).Inc()
	return Page{Rows: []Row{}, Source: SourceEmpty}
}

// fromCache queries the global and contract partitions concurrently
// and merges them, keeping the freshest copy of each trade.
func (a *Aggregator) fromCache(ctx context.Context) []*cache.Listing {
	log := logging.FromContext(ctx)
	partitions := []string{cache.GlobalPartition, cache.ContractPartition(a.contract)}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		byTrade = make(map[uint64]*cache.Listing)
	)
	for _, partition := range partitions {
		if a.breaker != nil && !a.breaker.Allow("cache:"+partition) {
			continue
		}
		wg.Add(1)
		go func(partition string) {
			defer wg.Done()

			ls, err := a.store.ListListings(ctx, partition, a.Limit)
			if err != nil {
				if a.breaker != nil {
					a.breaker.RecordFailure("cache:" + partition)
				}
				metrics.CacheOpsTotal.WithLabelValues("list", "error").Inc()
				log.Warn("cache partition query failed", "partition", partition, "error", err)
				return
			}
			if a.breaker != nil {
				a.breaker.RecordSuccess("cache:" + partition)
			}
			metrics.CacheOpsTotal.WithLabelValues("list", "ok").Inc()

			mu.Lock()
			for _, l := range ls {
				if prev, ok := byTrade[l.TradeID]; ok && !l.UpdatedAt.After(prev.UpdatedAt) {
					continue
				}
				byTrade[l.TradeID] = l
			}
			mu.Unlock()
		}(partition)
	}
	wg.Wait()

	merged := make([]*cache.Listing, 0, len(byTrade))
	for _, l := range byTrade {
		merged = append(merged, l)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].TradeID > merged[j].TradeID
	})
	if len(merged) > a.Limit {
		merged = merged[:a.Limit]
	}
	return merged
}

func (a *Aggregator) render(listings []*cache.Listing) []Row {
	rows := make([]Row, 0, len(listings))
	for _, l := range listings {
		symbol := l.Symbol
		if symbol == "" {
			symbol = a.reg.Symbol(l.Token)
		}
		rows = append(rows, Row{
			TradeID:    l.TradeID,
			Seller:     l.Seller,
			Token:      l.Token,
			Symbol:     symbol,
			Amount:     l.Amount,
			Fiat:       l.Fiat.String(),
			FiatAmount: l.FiatAmount,
			UnitPrice:  l.UnitPrice,
			SellerSNS:  l.SellerSNS,
			Status:     l.Status.String(),
			StatusCode: l.Status,
		})
	}
	return rows
}

// overrideStatuses replaces the cached status of the newest rows with
// a live chain read. The override is unconditional: even a cached
// status that looks current is replaced, because the cache is
// untrusted. Rows whose read fails keep the cached status.
func (a *Aggregator) overrideStatuses(ctx context.Context, rows []Row) {
	n := len(rows)
	if n > a.OverrideLimit {
		n = a.OverrideLimit
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			t, err := a.chain.GetTrade(ctx, rows[i].TradeID)
			if err != nil || t.Seller == trade.ZeroAddress {
				return
			}
			rows[i].Status = t.Status.String()
			rows[i].StatusCode = t.Status
		}(i)
	}
	wg.Wait()
}

// fromChain walks trades from the newest id downward, collecting
// opened entries until the page fills or ids run out. Token decimals
// are memoized per token across the walk.
func (a *Aggregator) fromChain(ctx context.Context) ([]Row, error) {
	next, err := a.chain.NextTradeID(ctx)
	if err != nil {
		return nil, err
	}
	if next == 0 {
		return nil, nil
	}

	decCache := make(map[string]uint8)
	rows := make([]Row, 0, a.Limit)

	// Bounded scan: a run of failed reads must not walk the whole id
	// space.
	scansLeft := a.Limit * 3
	for id := next - 1; len(rows) < a.Limit && scansLeft > 0; id-- {
		scansLeft--
		t, err := a.chain.GetTrade(ctx, id)
		if err == nil && t.Seller != trade.ZeroAddress {
			rows = append(rows, a.rowFromTrade(ctx, t, decCache))
		}
		if id == 0 {
			break
		}
	}
	return rows, nil
}

// SellerHistory lists every trade a seller has opened, newest first,
// with the current on-chain status. The log scan reaches trades the
// cache never saw, so the history survives a cold or wiped cache.
func (a *Aggregator) SellerHistory(ctx context.Context, seller string) ([]Row, error) {
	ctx, span := traces.StartSpan(ctx, "board.seller_history", traces.Wallet(seller))
	defer span.End()

	events, err := a.chain.FilterTradeOpened(ctx, 0, 0, seller)
	if err != nil {
		return nil, err
	}

	decCache := make(map[string]uint8)
	rows := make([]Row, 0, len(events))
	for i := len(events) - 1; i >= 0 && len(rows) < a.Limit; i-- {
		ev := events[i]
		t, err := a.chain.GetTrade(ctx, ev.TradeID)
		if err != nil || t.Seller == trade.ZeroAddress {
			continue
		}
		rows = append(rows, a.rowFromTrade(ctx, t, decCache))
	}
	return rows, nil
}

func (a *Aggregator) rowFromTrade(ctx context.Context, t *trade.Trade, decCache map[string]uint8) Row {
	symbol := a.reg.Symbol(t.Token)

	decimals, ok := decCache[t.Token]
	if !ok {
		if tok, found := a.reg.ByAddress(t.Token); found {
			decimals = tok.Decimals
		} else if d, err := a.chain.TokenDecimals(ctx, t.Token); err == nil {
			decimals = d
		} else {
			decimals = a.reg.FallbackDecimals()
		}
		decCache[t.Token] = decimals
	}

	var fiatAmount int64
	if t.FiatAmount != nil && t.FiatAmount.IsInt64() {
		fiatAmount = t.FiatAmount.Int64()
	}

	return Row{
		TradeID:    t.ID,
		Seller:     t.Seller,
		Token:      t.Token,
		Symbol:     symbol,
		Amount:     units.Format(t.Amount, decimals),
		Fiat:       t.Fiat.String(),
		FiatAmount: fiatAmount,
		UnitPrice:  trade.DeriveUnitPrice(t, decimals),
		SellerSNS:  "",
		Status:     t.Status.String(),
		StatusCode: t.Status,
	}
}
