// Package sequencer is the single entry point for trading commands. It
// enforces nonce idempotency, allocates ids, reserves funds before the book
// is touched, and hands resulting trades to settlement. Commands for one
// symbol are serialized; different symbols proceed in parallel.
package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/account"
	"github.com/thy3368/rustlob-sub005/internal/book"
	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/idgen"
	"github.com/thy3368/rustlob-sub005/internal/port"
)

// reservation is the still-frozen amount backing one resting or in-flight
// order. Settlement consumes it leg by leg; the residual is released when the
// order reaches a terminal state.
type reservation struct {
	accountID int64
	asset     string
	amount    decimal.Decimal
}

// shard owns one symbol's book. Its mutex is the per-symbol serialization
// discipline: the book itself is lock-free and single-writer.
type shard struct {
	mu       sync.Mutex
	pair     domain.TradingPair
	book     *book.OrderBook
	reserved map[int64]*reservation
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSelfTradePrevention makes the sequencer reject an incoming order that
// would match the same trader's resting order. Default is off: the engine
// allows self-matching.
func WithSelfTradePrevention() Option {
	return func(s *Sequencer) { s.preventSelfTrade = true }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

type Sequencer struct {
	accounts *account.Service
	repo     port.Repository
	cache    port.Cache
	ids      *idgen.Generator
	now      func() time.Time

	preventSelfTrade bool

	mu         sync.Mutex
	seen       map[uint64]*execution
	orderIndex map[int64]string // resting order id -> symbol

	shards map[string]*shard
}

// execution claims a nonce the moment it is first seen. Later arrivals with
// the same nonce wait on done and read the single computed result, so a nonce
// executes at most once even under concurrent replays.
type execution struct {
	done chan struct{}
	res  *domain.Result
}

func New(pairs domain.Pairs, accounts *account.Service, repo port.Repository, cache port.Cache, ids *idgen.Generator, opts ...Option) *Sequencer {
	s := &Sequencer{
		accounts:   accounts,
		repo:       repo,
		cache:      cache,
		ids:        ids,
		now:        time.Now,
		seen:       make(map[uint64]*execution),
		orderIndex: make(map[int64]string),
		shards:     make(map[string]*shard),
	}
	for _, opt := range opts {
		opt(s)
	}
	for sym, p := range pairs {
		s.shards[sym] = &shard{
			pair:     p,
			book:     book.New(sym, s.ids.Next),
			reserved: make(map[int64]*reservation),
		}
	}
	return s
}

// Handle executes one command with at-most-once semantics: a replayed nonce
// returns the previously computed result marked as a duplicate, with zero
// additional side effects.
func (s *Sequencer) Handle(ctx context.Context, cmd *domain.Command) *domain.Result {
	s.mu.Lock()
	if e, ok := s.seen[cmd.Nonce]; ok {
		s.mu.Unlock()
		<-e.done
		dup := *e.res
		dup.Meta.IsDuplicate = true
		return &dup
	}
	e := &execution{done: make(chan struct{})}
	s.seen[cmd.Nonce] = e
	s.mu.Unlock()

	now := s.now()
	res := s.dispatch(ctx, cmd, now)
	res.Meta = domain.ResultMeta{Nonce: cmd.Nonce, ReceivedAt: now}

	e.res = res
	close(e.done)
	return res
}

func (s *Sequencer) dispatch(ctx context.Context, cmd *domain.Command, now time.Time) *domain.Result {
	switch cmd.Type {
	case domain.CmdLimitOrder:
		if cmd.LimitOrder == nil {
			return errResult(&domain.InvalidParameterError{Field: "limit_order", Reason: "missing payload"})
		}
		return s.handleLimit(ctx, cmd.LimitOrder, now)
	case domain.CmdMarketOrder:
		if cmd.MarketOrder == nil {
			return errResult(&domain.InvalidParameterError{Field: "market_order", Reason: "missing payload"})
		}
		return s.handleMarket(ctx, cmd.MarketOrder, now)
	case domain.CmdCancelOrder:
		if cmd.CancelOrder == nil {
			return errResult(&domain.InvalidParameterError{Field: "cancel_order", Reason: "missing payload"})
		}
		return s.handleCancel(ctx, cmd.CancelOrder, now)
	case domain.CmdCancelAll:
		if cmd.CancelAll == nil {
			return errResult(&domain.InvalidParameterError{Field: "cancel_all", Reason: "missing payload"})
		}
		return s.handleCancelAll(ctx, cmd.CancelAll, now)
	default:
		return errResult(&domain.InvalidParameterError{Field: "type", Reason: "unknown command"})
	}
}

func errResult(err error) *domain.Result { return &domain.Result{Err: err} }

func (s *Sequencer) shard(symbol string) (*shard, bool) {
	sh, ok := s.shards[symbol]
	return sh, ok
}

// consume reduces an order's tracked reservation after a settlement leg.
func (sh *shard) consume(orderID int64, amount decimal.Decimal) {
	r, ok := sh.reserved[orderID]
	if !ok {
		return
	}
	r.amount = r.amount.Sub(amount)
	if r.amount.IsNegative() {
		r.amount = decimal.Zero
	}
}

// release unfreezes whatever is left of an order's reservation and forgets it.
// Covers both the unfilled remainder and the price-improvement surplus of
// fully filled buys.
func (s *Sequencer) release(ctx context.Context, sh *shard, orderID int64) error {
	r, ok := sh.reserved[orderID]
	if !ok {
		return nil
	}
	delete(sh.reserved, orderID)
	s.mu.Lock()
	delete(s.orderIndex, orderID)
	s.mu.Unlock()
	if r.amount.IsPositive() {
		if err := s.accounts.Unfreeze(r.accountID, r.asset, r.amount); err != nil {
			return err
		}
		s.saveBalance(ctx, r.accountID, r.asset)
	}
	return nil
}

// trimReservation releases any price-improvement surplus once an order rests,
// leaving exactly what the remaining quantity needs at the resting price. A
// resting maker only ever trades at its own price, so no further surplus can
// accrue.
func (s *Sequencer) trimReservation(ctx context.Context, sh *shard, o *domain.Order) error {
	r, ok := sh.reserved[o.ID]
	if !ok {
		return nil
	}
	_, want, err := sh.pair.ReserveFor(o.Side, o.Price, o.Remaining())
	if err != nil {
		return err
	}
	if r.amount.GreaterThan(want) {
		diff := r.amount.Sub(want)
		r.amount = want
		if err := s.accounts.Unfreeze(r.accountID, r.asset, diff); err != nil {
			return err
		}
		s.saveBalance(ctx, r.accountID, r.asset)
	}
	return nil
}

// Restore reloads persisted open orders into the books after a restart. The
// balance store must already hold the matching frozen amounts; only book state
// and reservation tracking are rebuilt here.
func (s *Sequencer) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	for sym, sh := range s.shards {
		orders, err := s.repo.LoadOpenOrders(ctx, sym)
		if err != nil {
			return fmt.Errorf("restore %s: %w", sym, err)
		}
		sh.mu.Lock()
		for _, o := range orders {
			asset, amount, err := sh.pair.ReserveFor(o.Side, o.Price, o.Remaining())
			if err != nil {
				sh.mu.Unlock()
				return fmt.Errorf("restore %s order %d: %w", sym, o.ID, err)
			}
			sh.book.Restore(o)
			sh.reserved[o.ID] = &reservation{accountID: o.TraderID, asset: asset, amount: amount}
			s.mu.Lock()
			s.orderIndex[o.ID] = sym
			s.mu.Unlock()
		}
		if len(orders) > 0 {
			s.refreshDepth(ctx, sh)
		}
		sh.mu.Unlock()
	}
	return nil
}

// Persistence is write-behind and optional; the in-memory engine stays the
// source of truth, so a missing repository or a failed write is not an error.

func (s *Sequencer) saveBalance(ctx context.Context, accountID int64, asset string) {
	if s.repo == nil {
		return
	}
	if b := s.accounts.Balance(accountID, asset); b != nil {
		_ = s.repo.SaveBalance(ctx, b)
	}
}

func (s *Sequencer) saveOrder(ctx context.Context, o *domain.Order) {
	if s.repo != nil {
		_ = s.repo.SaveOrder(ctx, o)
	}
}

func (s *Sequencer) saveTrade(ctx context.Context, t *domain.Trade) {
	if s.repo != nil {
		_ = s.repo.SaveTrade(ctx, t)
	}
}

// settle runs the four-leg settlement for every trade of a match and keeps
// the per-order reservation accounting in step.
func (s *Sequencer) settle(ctx context.Context, sh *shard, trades []*domain.Trade) error {
	for _, t := range trades {
		if err := s.accounts.SettleTrade(t, sh.pair); err != nil {
			return err
		}
		notional := t.Notional()
		if t.TakerSide == domain.Buy {
			sh.consume(t.TakerOrderID, notional)
			sh.consume(t.MakerOrderID, t.Quantity)
		} else {
			sh.consume(t.TakerOrderID, t.Quantity)
			sh.consume(t.MakerOrderID, notional)
		}
		s.saveTrade(ctx, t)
		s.saveBalance(ctx, t.TakerID, sh.pair.BaseAsset)
		s.saveBalance(ctx, t.TakerID, sh.pair.QuoteAsset)
		s.saveBalance(ctx, t.MakerID, sh.pair.BaseAsset)
		s.saveBalance(ctx, t.MakerID, sh.pair.QuoteAsset)
	}
	return nil
}

// finishMatch releases reservations of every order the match terminated and
// persists the touched records.
func (s *Sequencer) finishMatch(ctx context.Context, sh *shard, res *book.MatchResult) error {
	for _, o := range res.Expired {
		if err := s.release(ctx, sh, o.ID); err != nil {
			return err
		}
		s.saveOrder(ctx, o)
	}
	for _, t := range res.Trades {
		if maker := sh.book.Order(t.MakerOrderID); maker == nil {
			// maker fully filled and removed from the book
			_ = s.release(ctx, sh, t.MakerOrderID)
		}
	}
	s.saveOrder(ctx, res.Taker)
	s.refreshDepth(ctx, sh)
	return nil
}

func (s *Sequencer) refreshDepth(ctx context.Context, sh *shard) {
	if s.cache == nil {
		return
	}
	_ = s.cache.SetDepth(ctx, sh.book.Symbol(), sh.book.Snapshot(0, s.now()))
}

func orderResult(o *domain.Order, trades []*domain.Trade) *domain.Result {
	fills := make([]domain.TradeFill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, domain.TradeFill{
			MatchedOrderID: t.MakerOrderID,
			Price:          t.Price,
			Quantity:       t.Quantity,
		})
	}
	return &domain.Result{Order: &domain.OrderResult{
		OrderID:   o.ID,
		Status:    o.Status,
		Filled:    o.Filled,
		Remaining: o.Remaining(),
		Fills:     fills,
	}}
}
