package book

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/domain"
)

// fillPlan is one leg of a computed match: maker and the quantity to take.
type fillPlan struct {
	maker *domain.Order
	qty   decimal.Decimal
}

// plan walks the opposing side in price-time order and computes the fills an
// order of the given side/quantity would produce, without mutating the book.
// limit caps how deep the sweep may go (nil for an uncapped market order).
// Expired GTD makers encountered on the way are reported for eviction. Every
// planned leg is validated overflow-free; a failing leg aborts the whole plan
// so the book is left exactly as it was.
func (b *OrderBook) plan(s domain.Side, limit *decimal.Decimal, want decimal.Decimal, nowMs int64) ([]fillPlan, []*domain.Order, error) {
	opp := b.opposite(s)
	var fills []fillPlan
	var expired []*domain.Order

	remaining := want
	for _, l := range opp.levels {
		if remaining.IsZero() {
			break
		}
		if limit != nil && !opp.betterOrEqual(l.price, *limit) {
			break
		}
		for e := l.orders.Front(); e != nil && remaining.IsPositive(); e = e.Next() {
			maker := e.Value.(*domain.Order)
			if maker.IsExpired(nowMs) {
				expired = append(expired, maker)
				continue
			}
			qty := decimal.Min(remaining, maker.Remaining())
			if maker.Price.Mul(qty).GreaterThan(domain.MaxAmount) {
				return nil, nil, domain.ErrOverflow
			}
			fills = append(fills, fillPlan{maker: maker, qty: qty})
			remaining = remaining.Sub(qty)
		}
	}
	return fills, expired, nil
}

// apply commits a previously computed plan: evicts expired makers, fills both
// sides of each leg at the maker's resting price, and removes exhausted makers
// and levels.
func (b *OrderBook) apply(taker *domain.Order, fills []fillPlan, expired []*domain.Order, now time.Time) []*domain.Trade {
	for _, o := range expired {
		b.remove(o)
		o.Status = domain.Expired
		o.UpdatedAt = now
	}

	trades := make([]*domain.Trade, 0, len(fills))
	for _, f := range fills {
		f.maker.Fill(f.qty, now)
		taker.Fill(f.qty, now)
		trades = append(trades, &domain.Trade{
			ID:           b.nextTradeID(),
			Symbol:       b.symbol,
			TakerOrderID: taker.ID,
			MakerOrderID: f.maker.ID,
			TakerID:      taker.TraderID,
			MakerID:      f.maker.TraderID,
			TakerSide:    taker.Side,
			Price:        f.maker.Price,
			Quantity:     f.qty,
			Timestamp:    now,
		})
		if f.maker.Status == domain.Filled {
			b.remove(f.maker)
		}
	}
	return trades
}

// SubmitLimit runs an incoming limit order through matching and applies its
// time-in-force policy to any remainder.
func (b *OrderBook) SubmitLimit(o *domain.Order, now time.Time) (*MatchResult, error) {
	nowMs := now.UnixMilli()
	o.Status = domain.Pending
	res := &MatchResult{Taker: o}

	if o.TimeInForce == domain.PostOnly {
		if b.crosses(o.Side, o.Price, nowMs) {
			o.Status = domain.Rejected
			o.UpdatedAt = now
			return res, nil
		}
		b.insert(o)
		return res, nil
	}

	fills, expired, err := b.plan(o.Side, &o.Price, o.Remaining(), nowMs)
	if err != nil {
		return nil, err
	}

	if o.TimeInForce == domain.FOK {
		fillable := decimal.Zero
		for _, f := range fills {
			fillable = fillable.Add(f.qty)
		}
		if fillable.LessThan(o.Remaining()) {
			o.Status = domain.Rejected
			o.UpdatedAt = now
			return res, &domain.FillOrKillError{Requested: o.Remaining(), Fillable: fillable}
		}
	}

	res.Trades = b.apply(o, fills, expired, now)
	res.Expired = expired

	if o.Remaining().IsPositive() {
		switch o.TimeInForce {
		case domain.IOC:
			o.Status = domain.Cancelled
			o.UpdatedAt = now
		default: // GTC, GTD
			b.insert(o)
		}
	}
	return res, nil
}

// SubmitMarket sweeps the opposing side with no resting price of its own.
// priceLimit optionally caps how far the sweep walks; any remainder is
// discarded, market orders never rest.
func (b *OrderBook) SubmitMarket(o *domain.Order, priceLimit *decimal.Decimal, now time.Time) (*MatchResult, error) {
	nowMs := now.UnixMilli()
	o.Status = domain.Pending
	res := &MatchResult{Taker: o}

	fills, expired, err := b.plan(o.Side, priceLimit, o.Remaining(), nowMs)
	if err != nil {
		return nil, err
	}

	res.Trades = b.apply(o, fills, expired, now)
	res.Expired = expired

	switch {
	case o.Status == domain.Filled:
	case o.Filled.IsPositive():
		o.Status = domain.PartiallyFilled
		o.UpdatedAt = now
	default:
		o.Status = domain.Cancelled
		o.UpdatedAt = now
	}
	return res, nil
}
