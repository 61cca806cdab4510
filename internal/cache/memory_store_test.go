package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetexchange/vetex/internal/trade"
)

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	l := &Listing{
		TradeID:     5,
		Seller:      "0xabc",
		Symbol:      "USDT",
		Amount:      "100",
		Fiat:        trade.FiatKRW,
		UnitPrice:   1400,
		Status:      trade.StatusOpen,
		TxHash:      "0xbeef",
		BlockNumber: 99,
	}
	require.NoError(t, store.UpsertListing(ctx, GlobalPartition, l))

	got, err := store.GetListing(ctx, GlobalPartition, 5)
	require.NoError(t, err)
	assert.Equal(t, "USDT", got.Symbol)
	assert.Equal(t, "0xbeef", got.TxHash)
	assert.Equal(t, uint64(99), got.BlockNumber)
	assert.False(t, got.UpdatedAt.IsZero(), "UpdatedAt is assigned server-side")
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	// Original listing is not aliased by the store.
	l.Symbol = "MUTATED"
	got2, err := store.GetListing(ctx, GlobalPartition, 5)
	require.NoError(t, err)
	assert.Equal(t, "USDT", got2.Symbol)
}

func TestMemoryStore_UpsertPreservesCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	require.NoError(t, store.UpsertListing(ctx, GlobalPartition, &Listing{TradeID: 5, Status: trade.StatusOpen}))
	first, err := store.GetListing(ctx, GlobalPartition, 5)
	require.NoError(t, err)

	require.NoError(t, store.UpsertListing(ctx, GlobalPartition, &Listing{TradeID: 5, Status: trade.StatusTaken}))
	second, err := store.GetListing(ctx, GlobalPartition, 5)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, trade.StatusTaken, second.Status)
}

func TestMemoryStore_PartitionsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	contract := ContractPartition("0x1111111111111111111111111111111111111111")

	require.NoError(t, store.UpsertListing(ctx, GlobalPartition, &Listing{TradeID: 1}))
	require.NoError(t, store.UpsertListing(ctx, contract, &Listing{TradeID: 2}))

	_, err := store.GetListing(ctx, contract, 1)
	assert.ErrorIs(t, err, ErrListingNotFound)

	_, err = store.GetListing(ctx, GlobalPartition, 2)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestMemoryStore_ListOrdersNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []uint64{3, 1, 7, 5} {
		require.NoError(t, store.UpsertListing(ctx, GlobalPartition, &Listing{TradeID: id}))
	}

	list, err := store.ListListings(ctx, GlobalPartition, 0)
	require.NoError(t, err)
	ids := make([]uint64, len(list))
	for i, l := range list {
		ids[i] = l.TradeID
	}
	assert.Equal(t, []uint64{7, 5, 3, 1}, ids)

	limited, err := store.ListListings(ctx, GlobalPartition, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, uint64(7), limited[0].TradeID)
}

func TestMemoryStore_UpdateListingStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertListing(ctx, GlobalPartition, &Listing{TradeID: 9, Status: trade.StatusOpen}))
	require.NoError(t, store.UpdateListingStatus(ctx, GlobalPartition, 9, trade.StatusReleased))

	got, err := store.GetListing(ctx, GlobalPartition, 9)
	require.NoError(t, err)
	assert.Equal(t, trade.StatusReleased, got.Status)

	err = store.UpdateListingStatus(ctx, GlobalPartition, 404, trade.StatusOpen)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestMemoryStore_Profiles(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	p := &Profile{
		Address:   "0xAbCdEF0000000000000000000000000000000001",
		KakaoID:   "kim",
		KRBank:    "kakaobank",
		KRAccount: "1234-56",
	}
	require.NoError(t, store.UpsertProfile(ctx, p))

	// Lookup is case-insensitive; the stored address is lowercased.
	got, err := store.GetProfile(ctx, "0xABCDEF0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", got.Address)
	assert.Equal(t, "kim", got.KakaoID)

	_, err = store.GetProfile(ctx, "0x0000000000000000000000000000000000000404")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestProfile_ContactHelpers(t *testing.T) {
	assert.False(t, (&Profile{}).HasContact())
	assert.True(t, (&Profile{KakaoID: "k"}).HasContact())
	assert.True(t, (&Profile{TelegramID: "t"}).HasContact())

	assert.Equal(t, "", (&Profile{}).SNS())
	assert.Equal(t, "kakao: k", (&Profile{KakaoID: "k"}).SNS())
	assert.Equal(t, "tg: t", (&Profile{TelegramID: "t"}).SNS())
	assert.Equal(t, "kakao: k / tg: t", (&Profile{KakaoID: "k", TelegramID: "t"}).SNS())
}

func TestContractPartition(t *testing.T) {
	assert.Equal(t, "trades_0xabc", ContractPartition("0xABC"))
}
