package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thy3368/rustlob-sub005/internal/domain"
)

func TestCancelRemovesRemainingOnly(t *testing.T) {
	b := newTestBook()
	maker := limitOrder(1, domain.Sell, "100", "2.0", domain.GTC)
	mustSubmit(t, b, maker)
	mustSubmit(t, b, limitOrder(2, domain.Buy, "100", "0.5", domain.GTC))

	require.True(t, maker.Remaining().Equal(d("1.5")))

	o, err := b.Cancel(maker.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, o.Status)
	assert.True(t, o.Filled.Equal(d("0.5")), "filled portion survives the cancel")
	assert.Nil(t, b.Order(maker.ID))

	_, ok := b.BestAsk()
	assert.False(t, ok, "empty level must be removed")
}

func TestCancelUnknownOrder(t *testing.T) {
	b := newTestBook()
	_, err := b.Cancel(42, time.Now())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelAlreadyFilledOrder(t *testing.T) {
	b := newTestBook()
	maker := limitOrder(1, domain.Sell, "100", "1.0", domain.GTC)
	mustSubmit(t, b, maker)
	mustSubmit(t, b, limitOrder(2, domain.Buy, "100", "1.0", domain.GTC))

	// filled orders are indistinguishable from never-existed ones
	_, err := b.Cancel(maker.ID, time.Now())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelAllWithFilters(t *testing.T) {
	b := newTestBook()
	mustSubmit(t, b, limitOrder(1, domain.Buy, "99", "1.0", domain.GTC))
	mustSubmit(t, b, limitOrder(1, domain.Sell, "101", "1.0", domain.GTC))
	mustSubmit(t, b, limitOrder(2, domain.Buy, "98", "1.0", domain.GTC))

	cancelled := b.CancelAll(1, domain.Buy, time.Now())
	require.Len(t, cancelled, 1)
	assert.Equal(t, domain.Buy, cancelled[0].Side)

	cancelled = b.CancelAll(1, "", time.Now())
	require.Len(t, cancelled, 1)
	assert.Equal(t, domain.Sell, cancelled[0].Side)

	// trader 2 untouched
	best, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, best.Equal(d("98")))
}

func TestSnapshotAggregatesLevels(t *testing.T) {
	b := newTestBook()
	mustSubmit(t, b, limitOrder(1, domain.Buy, "99", "1.0", domain.GTC))
	mustSubmit(t, b, limitOrder(2, domain.Buy, "99", "2.0", domain.GTC))
	mustSubmit(t, b, limitOrder(1, domain.Buy, "98", "1.0", domain.GTC))
	mustSubmit(t, b, limitOrder(1, domain.Sell, "101", "1.5", domain.GTC))

	snap := b.Snapshot(0, time.Now())
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Bids[0].Price.Equal(d("99")))
	assert.True(t, snap.Bids[0].Quantity.Equal(d("3.0")))
	assert.Equal(t, 2, snap.Bids[0].Orders)
	assert.True(t, snap.Bids[1].Price.Equal(d("98")))

	top := b.Snapshot(1, time.Now())
	assert.Len(t, top.Bids, 1)
}

func TestHasRestingInCrossingRange(t *testing.T) {
	b := newTestBook()
	mustSubmit(t, b, limitOrder(1, domain.Sell, "100", "1.0", domain.GTC))
	nowMs := time.Now().UnixMilli()

	atLimit := d("100")
	below := d("99")
	assert.True(t, b.HasResting(1, domain.Buy, &atLimit, nowMs))
	assert.False(t, b.HasResting(1, domain.Buy, &below, nowMs))
	assert.False(t, b.HasResting(2, domain.Buy, &atLimit, nowMs))
	assert.True(t, b.HasResting(1, domain.Buy, nil, nowMs), "market order crosses everything")
}

func TestFIFOInsertionAfterPartialFill(t *testing.T) {
	b := newTestBook()
	first := limitOrder(1, domain.Sell, "100", "1.0", domain.GTC)
	mustSubmit(t, b, first)

	// partially fill the level, then add another order behind it
	mustSubmit(t, b, limitOrder(2, domain.Buy, "100", "0.4", domain.GTC))
	second := limitOrder(3, domain.Sell, "100", "1.0", domain.GTC)
	mustSubmit(t, b, second)

	taker := limitOrder(4, domain.Buy, "100", "1.0", domain.GTC)
	res := mustSubmit(t, b, taker)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, first.ID, res.Trades[0].MakerOrderID)
	assert.True(t, res.Trades[0].Quantity.Equal(d("0.6")))
	assert.Equal(t, second.ID, res.Trades[1].MakerOrderID)
	assert.True(t, res.Trades[1].Quantity.Equal(d("0.4")))
}
