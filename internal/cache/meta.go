package cache

import (
	"context"
	"errors"

	"github.com/vetexchange/vetex/internal/trade"
)

// MetaAdapter exposes a Store as the advisory metadata source the
// trade resolver consumes. It prefers the contract partition and falls
// back to the global one.
type MetaAdapter struct {
	store     Store
	partition string
}

func NewMetaAdapter(store Store, contract string) *MetaAdapter {
	return &MetaAdapter{store: store, partition: ContractPartition(contract)}
}

func (a *MetaAdapter) TradeMeta(ctx context.Context, id uint64) (*trade.Meta, error) {
	l, err := a.store.GetListing(ctx, a.partition, id)
	if errors.Is(err, ErrListingNotFound) {
		l, err = a.store.GetListing(ctx, GlobalPartition, id)
	}
	if err != nil {
		return nil, err
	}
	return &trade.Meta{SellerSNS: l.SellerSNS, UnitPrice: l.UnitPrice}, nil
}

var _ trade.MetaSource = (*MetaAdapter)(nil)
