package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thy3368/rustlob-sub005/internal/account"
	"github.com/thy3368/rustlob-sub005/internal/adapter/in_memory"
	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/idgen"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	seq      *Sequencer
	accounts *account.Service
	repo     *in_memory.Repo
	nonce    uint64
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ids, err := idgen.New(1)
	require.NoError(t, err)

	accounts := account.NewService(in_memory.NewBalanceStore())
	accounts.CreateAccount(1, 100)
	accounts.CreateAccount(2, 200)
	require.NoError(t, accounts.Credit(1, "USDT", d("1000")))
	require.NoError(t, accounts.Credit(2, "BTC", d("10")))

	repo := in_memory.NewRepo()
	pairs := domain.NewPairs(domain.TradingPair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"})
	seq := New(pairs, accounts, repo, in_memory.NewCache(), ids, opts...)
	return &fixture{seq: seq, accounts: accounts, repo: repo}
}

func (f *fixture) limit(t *testing.T, trader int64, side domain.Side, price, qty string, tif domain.TimeInForce) *domain.Result {
	t.Helper()
	f.nonce++
	return f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID:    trader,
			Symbol:      "BTC-USDT",
			Side:        side,
			Price:       d(price),
			Quantity:    d(qty),
			TimeInForce: tif,
		},
	})
}

func (f *fixture) available(trader int64, asset string) decimal.Decimal {
	b := f.accounts.Balance(trader, asset)
	if b == nil {
		return decimal.Zero
	}
	return b.Available
}

func (f *fixture) frozen(trader int64, asset string) decimal.Decimal {
	b := f.accounts.Balance(trader, asset)
	if b == nil {
		return decimal.Zero
	}
	return b.Frozen
}

func TestLimitOrderPipeline(t *testing.T) {
	f := newFixture(t)

	res := f.limit(t, 2, domain.Sell, "100", "1", domain.GTC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Pending, res.Order.Status)
	assert.True(t, f.frozen(2, "BTC").Equal(d("1")), "sell reserves the base quantity")

	res = f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Filled, res.Order.Status)
	require.Len(t, res.Order.Fills, 1)
	assert.True(t, res.Order.Fills[0].Price.Equal(d("100")))

	// settled: buyer paid 100 USDT for 1 BTC, seller the mirror
	assert.True(t, f.available(1, "USDT").Equal(d("900")))
	assert.True(t, f.available(1, "BTC").Equal(d("1")))
	assert.True(t, f.available(2, "USDT").Equal(d("100")))
	assert.True(t, f.available(2, "BTC").Equal(d("9")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
	assert.True(t, f.frozen(2, "BTC").IsZero())

	require.Len(t, f.repo.Trades(), 1)
}

func TestFreezeFailureShortCircuits(t *testing.T) {
	f := newFixture(t)

	// 1000 USDT available, order needs 1100
	res := f.limit(t, 1, domain.Buy, "110", "10", domain.GTC)
	var insufficient *domain.InsufficientAvailableError
	require.ErrorAs(t, res.Err, &insufficient)

	depth, err := f.seq.Depth(context.Background(), "BTC-USDT", 5)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids, "failed freeze must never reach the book")
	assert.True(t, f.frozen(1, "USDT").IsZero())
}

func TestSettlementSucceedsAfterAccountFreeze(t *testing.T) {
	f := newFixture(t)

	res := f.limit(t, 2, domain.Sell, "100", "1", domain.GTC)
	require.NoError(t, res.Err)

	// account 2 is frozen while its order rests; the match must still settle
	require.NoError(t, f.accounts.SetAccountStatus(2, domain.AccountHeld))

	res = f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Filled, res.Order.Status)

	assert.True(t, f.available(1, "BTC").Equal(d("1")))
	assert.True(t, f.available(2, "USDT").Equal(d("100")))
	assert.True(t, f.frozen(2, "BTC").IsZero())
	require.Len(t, f.repo.Trades(), 1)
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 2, domain.Sell, "100", "1", domain.GTC)

	f.nonce++
	cmd := &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID: 1, Symbol: "BTC-USDT", Side: domain.Buy,
			Price: d("100"), Quantity: d("1"), TimeInForce: domain.GTC,
		},
	}
	first := f.seq.Handle(context.Background(), cmd)
	require.NoError(t, first.Err)
	usdtAfter := f.available(1, "USDT")
	tradesAfter := len(f.repo.Trades())

	second := f.seq.Handle(context.Background(), cmd)
	assert.True(t, second.Meta.IsDuplicate)
	assert.False(t, first.Meta.IsDuplicate)
	assert.Equal(t, first.Order.OrderID, second.Order.OrderID)
	assert.Equal(t, first.Order.Status, second.Order.Status)

	// zero additional side effects
	assert.True(t, f.available(1, "USDT").Equal(usdtAfter))
	assert.Equal(t, tradesAfter, len(f.repo.Trades()))
}

func TestConcurrentSameNonceExecutesOnce(t *testing.T) {
	f := newFixture(t)
	cmd := &domain.Command{
		Nonce: 7,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID: 1, Symbol: "BTC-USDT", Side: domain.Buy,
			Price: d("100"), Quantity: d("1"), TimeInForce: domain.GTC,
		},
	}

	results := make([]*domain.Result, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = f.seq.Handle(context.Background(), cmd)
		}(i)
	}
	close(start)
	wg.Wait()

	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.NotEqual(t, results[0].Meta.IsDuplicate, results[1].Meta.IsDuplicate,
		"exactly one call executes, the other gets the cached result")
	assert.Equal(t, results[0].Order.OrderID, results[1].Order.OrderID)

	// side effects of a single execution only
	assert.True(t, f.frozen(1, "USDT").Equal(d("100")))
	depth, err := f.seq.Depth(context.Background(), "BTC-USDT", 0)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0].Quantity.Equal(d("1")))
}

func TestRunsWithoutRepositoryOrCache(t *testing.T) {
	ids, err := idgen.New(3)
	require.NoError(t, err)
	accounts := account.NewService(in_memory.NewBalanceStore())
	accounts.CreateAccount(1, 100)
	require.NoError(t, accounts.Credit(1, "USDT", d("1000")))
	pairs := domain.NewPairs(domain.TradingPair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"})
	seq := New(pairs, accounts, nil, nil, ids)
	require.NoError(t, seq.Restore(context.Background()))

	res := seq.Handle(context.Background(), &domain.Command{
		Nonce: 1,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID: 1, Symbol: "BTC-USDT", Side: domain.Buy,
			Price: d("100"), Quantity: d("1"), TimeInForce: domain.GTC,
		},
	})
	require.NoError(t, res.Err)

	cres := seq.Handle(context.Background(), &domain.Command{
		Nonce:       2,
		Type:        domain.CmdCancelOrder,
		CancelOrder: &domain.CancelOrderCmd{TraderID: 1, OrderID: res.Order.OrderID},
	})
	require.NoError(t, cres.Err)
	b := accounts.Balance(1, "USDT")
	require.NotNil(t, b)
	assert.True(t, b.Available.Equal(d("1000")))
}

func TestCancelRestoresExactReservation(t *testing.T) {
	f := newFixture(t)

	res := f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	require.NoError(t, res.Err)
	assert.True(t, f.available(1, "USDT").Equal(d("900")))
	assert.True(t, f.frozen(1, "USDT").Equal(d("100")))

	f.nonce++
	cres := f.seq.Handle(context.Background(), &domain.Command{
		Nonce:       f.nonce,
		Type:        domain.CmdCancelOrder,
		CancelOrder: &domain.CancelOrderCmd{TraderID: 1, OrderID: res.Order.OrderID},
	})
	require.NoError(t, cres.Err)
	assert.True(t, cres.Cancel.Unfilled.Equal(d("1")))

	assert.True(t, f.available(1, "USDT").Equal(d("1000")), "cancel restores price*quantity")
	assert.True(t, f.frozen(1, "USDT").IsZero())
}

func TestCancelWrongTrader(t *testing.T) {
	f := newFixture(t)
	res := f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	require.NoError(t, res.Err)

	f.nonce++
	cres := f.seq.Handle(context.Background(), &domain.Command{
		Nonce:       f.nonce,
		Type:        domain.CmdCancelOrder,
		CancelOrder: &domain.CancelOrderCmd{TraderID: 2, OrderID: res.Order.OrderID},
	})
	assert.ErrorIs(t, cres.Err, domain.ErrOrderNotFound)
}

func TestPriceImprovementSurplusReleased(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 2, domain.Sell, "100", "1", domain.GTC)

	// buyer reserves 110 but trades at the maker's 100
	res := f.limit(t, 1, domain.Buy, "110", "1", domain.GTC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Filled, res.Order.Status)

	assert.True(t, f.available(1, "USDT").Equal(d("900")))
	assert.True(t, f.frozen(1, "USDT").IsZero(), "the 10 USDT surplus must be released")
}

func TestRestingRemainderKeepsExactReservation(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 2, domain.Sell, "100", "1", domain.GTC)

	// fills 1 at 100, rests 1 at 110: frozen must be trimmed to 110
	res := f.limit(t, 1, domain.Buy, "110", "2", domain.GTC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.PartiallyFilled, res.Order.Status)

	assert.True(t, f.frozen(1, "USDT").Equal(d("110")))
	assert.True(t, f.available(1, "USDT").Equal(d("790")))

	f.nonce++
	cres := f.seq.Handle(context.Background(), &domain.Command{
		Nonce:       f.nonce,
		Type:        domain.CmdCancelOrder,
		CancelOrder: &domain.CancelOrderCmd{TraderID: 1, OrderID: res.Order.OrderID},
	})
	require.NoError(t, cres.Err)
	assert.True(t, f.available(1, "USDT").Equal(d("900")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
}

func TestRestoreRebuildsBookAndReservations(t *testing.T) {
	f := newFixture(t)
	res := f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	require.NoError(t, res.Err)

	// fresh sequencer over the same accounts and repository, as after a restart
	ids, err := idgen.New(2)
	require.NoError(t, err)
	pairs := domain.NewPairs(domain.TradingPair{Symbol: "BTC-USDT", BaseAsset: "BTC", QuoteAsset: "USDT"})
	seq2 := New(pairs, f.accounts, f.repo, in_memory.NewCache(), ids)
	require.NoError(t, seq2.Restore(context.Background()))

	depth, err := seq2.Depth(context.Background(), "BTC-USDT", 1)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0].Price.Equal(d("100")))

	cres := seq2.Handle(context.Background(), &domain.Command{
		Nonce:       99,
		Type:        domain.CmdCancelOrder,
		CancelOrder: &domain.CancelOrderCmd{TraderID: 1, OrderID: res.Order.OrderID},
	})
	require.NoError(t, cres.Err)
	assert.True(t, f.available(1, "USDT").Equal(d("1000")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
}

func TestIOCRemainderReleased(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 2, domain.Sell, "100", "1.2", domain.GTC)

	res := f.limit(t, 1, domain.Buy, "100", "2", domain.IOC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Cancelled, res.Order.Status)
	assert.True(t, res.Order.Filled.Equal(d("1.2")))

	// 200 frozen, 120 settled, 80 released
	assert.True(t, f.available(1, "USDT").Equal(d("880")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
	assert.True(t, f.available(1, "BTC").Equal(d("1.2")))
}

func TestFOKRejectionLeavesBalancesUntouched(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 2, domain.Sell, "100", "1.5", domain.GTC)

	res := f.limit(t, 1, domain.Buy, "100", "2", domain.FOK)
	var fok *domain.FillOrKillError
	require.ErrorAs(t, res.Err, &fok)

	assert.True(t, f.available(1, "USDT").Equal(d("1000")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
	assert.Empty(t, f.repo.Trades())
}

func TestCancelAllReleasesEachReservation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.accounts.Credit(1, "BTC", d("5")))

	f.limit(t, 1, domain.Buy, "90", "1", domain.GTC)
	f.limit(t, 1, domain.Buy, "95", "1", domain.GTC)
	f.limit(t, 1, domain.Sell, "120", "1", domain.GTC)

	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce:     f.nonce,
		Type:      domain.CmdCancelAll,
		CancelAll: &domain.CancelAllCmd{TraderID: 1},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.CancelAll.Count)
	assert.Len(t, res.CancelAll.OrderIDs, 3)

	assert.True(t, f.available(1, "USDT").Equal(d("1000")))
	assert.True(t, f.available(1, "BTC").Equal(d("5")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
	assert.True(t, f.frozen(1, "BTC").IsZero())
}

func TestMarketBuyRequiresPriceLimit(t *testing.T) {
	f := newFixture(t)
	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdMarketOrder,
		MarketOrder: &domain.MarketOrderCmd{
			TraderID: 1, Symbol: "BTC-USDT", Side: domain.Buy, Quantity: d("1"),
		},
	})
	var invalid *domain.InvalidParameterError
	require.ErrorAs(t, res.Err, &invalid)
	assert.Equal(t, "price_limit", invalid.Field)
}

func TestMarketBuyReleasesResidual(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 2, domain.Sell, "100", "1", domain.GTC)

	limit := d("105")
	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdMarketOrder,
		MarketOrder: &domain.MarketOrderCmd{
			TraderID: 1, Symbol: "BTC-USDT", Side: domain.Buy,
			Quantity: d("2"), PriceLimit: &limit,
		},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, domain.PartiallyFilled, res.Order.Status)
	assert.True(t, res.Order.Filled.Equal(d("1")))

	// reserved 210, settled 100, rest released
	assert.True(t, f.available(1, "USDT").Equal(d("900")))
	assert.True(t, f.frozen(1, "USDT").IsZero())
	assert.True(t, f.available(1, "BTC").Equal(d("1")))
}

func TestMarketSellNeedsNoPriceLimit(t *testing.T) {
	f := newFixture(t)
	f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)

	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdMarketOrder,
		MarketOrder: &domain.MarketOrderCmd{
			TraderID: 2, Symbol: "BTC-USDT", Side: domain.Sell, Quantity: d("1"),
		},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Filled, res.Order.Status)
	assert.True(t, f.available(2, "USDT").Equal(d("100")))
}

func TestSelfTradePrevention(t *testing.T) {
	f := newFixture(t, WithSelfTradePrevention())
	require.NoError(t, f.accounts.Credit(1, "BTC", d("5")))

	f.limit(t, 1, domain.Sell, "100", "1", domain.GTC)
	res := f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	assert.ErrorIs(t, res.Err, domain.ErrSelfTrade)
	assert.True(t, f.frozen(1, "USDT").IsZero(), "rejected order's freeze is rolled back")
	assert.Empty(t, f.repo.Trades())
}

func TestSelfTradeAllowedByDefault(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.accounts.Credit(1, "BTC", d("5")))

	f.limit(t, 1, domain.Sell, "100", "1", domain.GTC)
	res := f.limit(t, 1, domain.Buy, "100", "1", domain.GTC)
	require.NoError(t, res.Err)
	assert.Equal(t, domain.Filled, res.Order.Status)
}

func TestSweepExpiredReleasesReservation(t *testing.T) {
	f := newFixture(t)

	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID: 2, Symbol: "BTC-USDT", Side: domain.Sell,
			Price: d("100"), Quantity: d("1"), TimeInForce: domain.GTD,
			ExpireAt: time.Now().Add(50 * time.Millisecond).UnixMilli(),
		},
	})
	require.NoError(t, res.Err)
	assert.True(t, f.frozen(2, "BTC").Equal(d("1")))

	time.Sleep(60 * time.Millisecond)
	n := f.seq.SweepExpired(context.Background())
	assert.Equal(t, 1, n)
	assert.True(t, f.frozen(2, "BTC").IsZero())
	assert.True(t, f.available(2, "BTC").Equal(d("10")))
}

func TestUnknownSymbolRejected(t *testing.T) {
	f := newFixture(t)
	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID: 1, Symbol: "DOGE-USDT", Side: domain.Buy,
			Price: d("1"), Quantity: d("1"), TimeInForce: domain.GTC,
		},
	})
	assert.ErrorIs(t, res.Err, domain.ErrSymbolNotFound)
}

func TestGTDExpiryInPastRejected(t *testing.T) {
	f := newFixture(t)
	f.nonce++
	res := f.seq.Handle(context.Background(), &domain.Command{
		Nonce: f.nonce,
		Type:  domain.CmdLimitOrder,
		LimitOrder: &domain.LimitOrderCmd{
			TraderID: 2, Symbol: "BTC-USDT", Side: domain.Sell,
			Price: d("100"), Quantity: d("1"), TimeInForce: domain.GTD,
			ExpireAt: time.Now().Add(-time.Minute).UnixMilli(),
		},
	})
	var invalid *domain.InvalidParameterError
	require.ErrorAs(t, res.Err, &invalid)
	assert.True(t, f.frozen(2, "BTC").IsZero())
}
