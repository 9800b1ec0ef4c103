package sequencer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/book"
	"github.com/thy3368/rustlob-sub005/internal/domain"
)

func (s *Sequencer) handleLimit(ctx context.Context, cmd *domain.LimitOrderCmd, now time.Time) *domain.Result {
	sh, ok := s.shard(cmd.Symbol)
	if !ok {
		return errResult(domain.ErrSymbolNotFound)
	}
	if !cmd.Side.Valid() {
		return errResult(&domain.InvalidParameterError{Field: "side", Reason: "must be BUY or SELL"})
	}
	if !cmd.TimeInForce.Valid() {
		return errResult(domain.ErrInvalidTimeInForce)
	}
	if !cmd.Price.IsPositive() {
		return errResult(domain.ErrPriceOutOfRange)
	}
	if !cmd.Quantity.IsPositive() {
		return errResult(domain.ErrQuantityOutOfRange)
	}
	if cmd.TimeInForce == domain.GTD && cmd.ExpireAt <= now.UnixMilli() {
		return errResult(&domain.InvalidParameterError{Field: "expire_at", Reason: "must be in the future"})
	}

	asset, amount, err := sh.pair.ReserveFor(cmd.Side, cmd.Price, cmd.Quantity)
	if err != nil {
		return errResult(err)
	}

	// Reserve before the book is touched; a failed freeze never reaches
	// matching.
	if err := s.accounts.CheckAndFreeze(cmd.TraderID, asset, amount); err != nil {
		return errResult(err)
	}
	s.saveBalance(ctx, cmd.TraderID, asset)

	o := &domain.Order{
		ID:            s.ids.Next(),
		ClientOrderID: cmd.ClientOrderID,
		TraderID:      cmd.TraderID,
		Symbol:        cmd.Symbol,
		Side:          cmd.Side,
		Type:          domain.Limit,
		TimeInForce:   cmd.TimeInForce,
		Price:         cmd.Price,
		Quantity:      cmd.Quantity,
		Filled:        decimal.Zero,
		ExpireAt:      cmd.ExpireAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s.preventSelfTrade && cmd.TimeInForce != domain.PostOnly &&
		sh.book.HasResting(cmd.TraderID, cmd.Side, &cmd.Price, now.UnixMilli()) {
		_ = s.accounts.Unfreeze(cmd.TraderID, asset, amount)
		return errResult(domain.ErrSelfTrade)
	}

	sh.reserved[o.ID] = &reservation{accountID: cmd.TraderID, asset: asset, amount: amount}

	res, err := sh.book.SubmitLimit(o, now)
	if err != nil {
		// FOK rejection or mid-match overflow: book untouched, release fully.
		_ = s.release(ctx, sh, o.ID)
		return errResult(err)
	}
	if o.Status == domain.Rejected {
		// PostOnly would have crossed.
		_ = s.release(ctx, sh, o.ID)
		return orderResult(o, nil)
	}

	if err := s.settle(ctx, sh, res.Trades); err != nil {
		return errResult(err)
	}

	if o.Status.Terminal() {
		if err := s.release(ctx, sh, o.ID); err != nil {
			return errResult(err)
		}
	} else {
		s.mu.Lock()
		s.orderIndex[o.ID] = o.Symbol
		s.mu.Unlock()
		if err := s.trimReservation(ctx, sh, o); err != nil {
			return errResult(err)
		}
	}

	if err := s.finishMatch(ctx, sh, res); err != nil {
		return errResult(err)
	}
	return orderResult(o, res.Trades)
}

func (s *Sequencer) handleMarket(ctx context.Context, cmd *domain.MarketOrderCmd, now time.Time) *domain.Result {
	sh, ok := s.shard(cmd.Symbol)
	if !ok {
		return errResult(domain.ErrSymbolNotFound)
	}
	if !cmd.Side.Valid() {
		return errResult(&domain.InvalidParameterError{Field: "side", Reason: "must be BUY or SELL"})
	}
	if !cmd.Quantity.IsPositive() {
		return errResult(domain.ErrQuantityOutOfRange)
	}
	if cmd.PriceLimit != nil && !cmd.PriceLimit.IsPositive() {
		return errResult(domain.ErrPriceOutOfRange)
	}
	// A market buy reserves quote funds, so its worst-case price must be
	// bounded: the price limit doubles as the reservation price.
	if cmd.Side == domain.Buy && cmd.PriceLimit == nil {
		return errResult(&domain.InvalidParameterError{Field: "price_limit", Reason: "required for market buy"})
	}

	reservePrice := decimal.Zero
	if cmd.PriceLimit != nil {
		reservePrice = *cmd.PriceLimit
	}
	asset, amount, err := sh.pair.ReserveFor(cmd.Side, reservePrice, cmd.Quantity)
	if err != nil {
		return errResult(err)
	}
	if err := s.accounts.CheckAndFreeze(cmd.TraderID, asset, amount); err != nil {
		return errResult(err)
	}
	s.saveBalance(ctx, cmd.TraderID, asset)

	o := &domain.Order{
		ID:            s.ids.Next(),
		ClientOrderID: cmd.ClientOrderID,
		TraderID:      cmd.TraderID,
		Symbol:        cmd.Symbol,
		Side:          cmd.Side,
		Type:          domain.Market,
		TimeInForce:   domain.IOC,
		Quantity:      cmd.Quantity,
		Filled:        decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s.preventSelfTrade &&
		sh.book.HasResting(cmd.TraderID, cmd.Side, cmd.PriceLimit, now.UnixMilli()) {
		_ = s.accounts.Unfreeze(cmd.TraderID, asset, amount)
		return errResult(domain.ErrSelfTrade)
	}

	sh.reserved[o.ID] = &reservation{accountID: cmd.TraderID, asset: asset, amount: amount}

	res, err := sh.book.SubmitMarket(o, cmd.PriceLimit, now)
	if err != nil {
		_ = s.release(ctx, sh, o.ID)
		return errResult(err)
	}

	if err := s.settle(ctx, sh, res.Trades); err != nil {
		return errResult(err)
	}

	// Market orders never rest: release the residual unconditionally.
	if err := s.release(ctx, sh, o.ID); err != nil {
		return errResult(err)
	}
	if err := s.finishMatch(ctx, sh, res); err != nil {
		return errResult(err)
	}
	return orderResult(o, res.Trades)
}

func (s *Sequencer) handleCancel(ctx context.Context, cmd *domain.CancelOrderCmd, now time.Time) *domain.Result {
	s.mu.Lock()
	symbol, ok := s.orderIndex[cmd.OrderID]
	s.mu.Unlock()
	if !ok {
		return errResult(domain.ErrOrderNotFound)
	}
	sh, ok := s.shard(symbol)
	if !ok {
		return errResult(domain.ErrOrderNotFound)
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	o := sh.book.Order(cmd.OrderID)
	if o == nil || o.TraderID != cmd.TraderID {
		return errResult(domain.ErrOrderNotFound)
	}
	unfilled := o.Remaining()
	if _, err := sh.book.Cancel(cmd.OrderID, now); err != nil {
		return errResult(err)
	}
	if err := s.release(ctx, sh, cmd.OrderID); err != nil {
		return errResult(err)
	}
	s.saveOrder(ctx, o)
	s.refreshDepth(ctx, sh)

	return &domain.Result{Cancel: &domain.CancelResult{
		OrderID:  cmd.OrderID,
		Status:   domain.Cancelled,
		Unfilled: unfilled,
	}}
}

func (s *Sequencer) handleCancelAll(ctx context.Context, cmd *domain.CancelAllCmd, now time.Time) *domain.Result {
	if cmd.Side != "" && !cmd.Side.Valid() {
		return errResult(&domain.InvalidParameterError{Field: "side", Reason: "must be BUY or SELL"})
	}
	var count int
	var ids []int64
	for sym, sh := range s.shards {
		if cmd.Symbol != "" && cmd.Symbol != sym {
			continue
		}
		sh.mu.Lock()
		cancelled := sh.book.CancelAll(cmd.TraderID, cmd.Side, now)
		for _, o := range cancelled {
			// each order's reservation is released individually even though
			// removal was collected as a batch
			if err := s.release(ctx, sh, o.ID); err != nil {
				sh.mu.Unlock()
				return errResult(err)
			}
			s.saveOrder(ctx, o)
			ids = append(ids, o.ID)
			count++
		}
		if len(cancelled) > 0 {
			s.refreshDepth(ctx, sh)
		}
		sh.mu.Unlock()
	}
	return &domain.Result{CancelAll: &domain.CancelAllResult{Count: count, OrderIDs: ids}}
}

// SweepExpired proactively evicts due GTD orders across all books and
// releases their reservations. Expiry is otherwise lazy, checked during
// matching; the sweep keeps depth snapshots free of stale orders.
func (s *Sequencer) SweepExpired(ctx context.Context) int {
	now := s.now()
	var n int
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, o := range sh.book.ExpireDue(now) {
			_ = s.release(ctx, sh, o.ID)
			s.saveOrder(ctx, o)
			n++
		}
		if n > 0 {
			s.refreshDepth(ctx, sh)
		}
		sh.mu.Unlock()
	}
	return n
}

// Depth returns the aggregated book snapshot, cache-first.
func (s *Sequencer) Depth(ctx context.Context, symbol string, maxLevels int) (*book.Depth, error) {
	sh, ok := s.shard(symbol)
	if !ok {
		return nil, domain.ErrSymbolNotFound
	}
	if s.cache != nil && maxLevels == 0 {
		if d, err := s.cache.GetDepth(ctx, symbol); err == nil && d != nil {
			return d, nil
		}
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	d := sh.book.Snapshot(maxLevels, s.now())
	if s.cache != nil && maxLevels == 0 {
		_ = s.cache.SetDepth(ctx, symbol, d)
	}
	return d, nil
}
