// Package book implements a price-time-priority limit order book for a single
// symbol. The book is a pure state machine: it owns no goroutine and no lock,
// and must be driven by exactly one caller at a time (the sequencer).
package book

import (
	"container/list"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/domain"
)

// OrderBook holds resting orders for one symbol. Orders live once in the byID
// arena; price levels and the element index refer to the same records.
type OrderBook struct {
	symbol string

	bids *side
	asks *side

	byID map[int64]*domain.Order
	elem map[int64]*list.Element
	lvl  map[int64]*priceLevel

	seq         uint64
	nextTradeID func() int64
}

// MatchResult is everything a single submit produced: the taker's final state,
// the trades in match order, and any GTD orders evicted on the way.
type MatchResult struct {
	Taker   *domain.Order
	Trades  []*domain.Trade
	Expired []*domain.Order
}

func New(symbol string, nextTradeID func() int64) *OrderBook {
	return &OrderBook{
		symbol:      symbol,
		bids:        &side{bids: true},
		asks:        &side{bids: false},
		byID:        make(map[int64]*domain.Order),
		elem:        make(map[int64]*list.Element),
		lvl:         make(map[int64]*priceLevel),
		nextTradeID: nextTradeID,
	}
}

func (b *OrderBook) Symbol() string { return b.symbol }

// Order returns the resting order with the given id, or nil. Filled and
// cancelled orders are indistinguishable from never-existed ones.
func (b *OrderBook) Order(id int64) *domain.Order { return b.byID[id] }

func (b *OrderBook) BestBid() (decimal.Decimal, bool) {
	if l := b.bids.best(); l != nil {
		return l.price, true
	}
	return decimal.Zero, false
}

func (b *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if l := b.asks.best(); l != nil {
		return l.price, true
	}
	return decimal.Zero, false
}

func (b *OrderBook) opposite(s domain.Side) *side {
	if s == domain.Buy {
		return b.asks
	}
	return b.bids
}

func (b *OrderBook) sameSide(s domain.Side) *side {
	if s == domain.Buy {
		return b.bids
	}
	return b.asks
}

// crosses reports whether a limit order at price would take liquidity on
// entry. Expired GTD orders are absent from matching, so a level holding only
// expired orders does not count as crossing.
func (b *OrderBook) crosses(s domain.Side, price decimal.Decimal, nowMs int64) bool {
	opp := b.opposite(s)
	for _, l := range opp.levels {
		if !opp.betterOrEqual(l.price, price) {
			return false
		}
		for e := l.orders.Front(); e != nil; e = e.Next() {
			if !e.Value.(*domain.Order).IsExpired(nowMs) {
				return true
			}
		}
	}
	return false
}

// insert rests an order at the tail of its price level's queue.
func (b *OrderBook) insert(o *domain.Order) {
	s := b.sameSide(o.Side)
	l := s.find(o.Price)
	if l == nil {
		l = newPriceLevel(o.Price)
		s.insertLevel(l)
	}
	b.seq++
	o.Seq = b.seq
	b.byID[o.ID] = o
	b.elem[o.ID] = l.orders.PushBack(o)
	b.lvl[o.ID] = l
}

// remove takes an order out of the book, dropping its level if it empties.
func (b *OrderBook) remove(o *domain.Order) {
	l := b.lvl[o.ID]
	if l == nil {
		return
	}
	l.orders.Remove(b.elem[o.ID])
	if l.empty() {
		b.sameSide(o.Side).removeLevel(l)
	}
	delete(b.byID, o.ID)
	delete(b.elem, o.ID)
	delete(b.lvl, o.ID)
}

// Restore rests an order directly without matching, used to rebuild a book
// from storage. Callers must feed orders in their original arrival order so
// FIFO priority is preserved.
func (b *OrderBook) Restore(o *domain.Order) { b.insert(o) }

// Cancel removes a resting order, returning it so the caller can release the
// remaining reservation. Only the unfilled quantity is affected.
func (b *OrderBook) Cancel(orderID int64, now time.Time) (*domain.Order, error) {
	o, ok := b.byID[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	b.remove(o)
	o.Status = domain.Cancelled
	o.UpdatedAt = now
	return o, nil
}

// CancelAll removes every resting order of the trader, optionally restricted
// to one side. Returns the cancelled orders so each reservation can be
// released individually.
func (b *OrderBook) CancelAll(traderID int64, filter domain.Side, now time.Time) []*domain.Order {
	var hit []*domain.Order
	for _, o := range b.byID {
		if o.TraderID != traderID {
			continue
		}
		if filter != "" && o.Side != filter {
			continue
		}
		hit = append(hit, o)
	}
	for _, o := range hit {
		b.remove(o)
		o.Status = domain.Cancelled
		o.UpdatedAt = now
	}
	return hit
}

// ExpireDue evicts every resting GTD order whose expiry has passed. Expiry is
// otherwise handled lazily while matching; this sweep keeps snapshots clean.
func (b *OrderBook) ExpireDue(now time.Time) []*domain.Order {
	nowMs := now.UnixMilli()
	var due []*domain.Order
	for _, o := range b.byID {
		if o.IsExpired(nowMs) {
			due = append(due, o)
		}
	}
	for _, o := range due {
		b.remove(o)
		o.Status = domain.Expired
		o.UpdatedAt = now
	}
	return due
}

// HasResting reports whether the trader owns any order in the crossing range
// of an incoming order, used for self-trade prevention.
func (b *OrderBook) HasResting(traderID int64, s domain.Side, limit *decimal.Decimal, nowMs int64) bool {
	opp := b.opposite(s)
	for _, l := range opp.levels {
		if limit != nil && !opp.betterOrEqual(l.price, *limit) {
			break
		}
		for e := l.orders.Front(); e != nil; e = e.Next() {
			o := e.Value.(*domain.Order)
			if o.IsExpired(nowMs) {
				continue
			}
			if o.TraderID == traderID {
				return true
			}
		}
	}
	return false
}

// DepthLevel is one aggregated price level of a snapshot.
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth is a point-in-time aggregated view of the book.
type Depth struct {
	Symbol    string       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// Snapshot aggregates up to maxLevels levels per side (0 means all).
func (b *OrderBook) Snapshot(maxLevels int, now time.Time) *Depth {
	nowMs := now.UnixMilli()
	take := func(s *side) []DepthLevel {
		var out []DepthLevel
		for _, l := range s.levels {
			if maxLevels > 0 && len(out) >= maxLevels {
				break
			}
			vol := l.volume(nowMs)
			if vol.IsZero() {
				continue
			}
			out = append(out, DepthLevel{Price: l.price, Quantity: vol, Orders: l.orders.Len()})
		}
		return out
	}
	return &Depth{
		Symbol:    b.symbol,
		Bids:      take(b.bids),
		Asks:      take(b.asks),
		Timestamp: now,
	}
}
