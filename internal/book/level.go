package book

import (
	"container/list"

	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/domain"
)

// priceLevel holds the FIFO queue of resting orders at one exact price.
// Arrival order inside the queue is the time-priority tie-break.
type priceLevel struct {
	price  decimal.Decimal
	orders *list.List // of *domain.Order
}

func newPriceLevel(price decimal.Decimal) *priceLevel {
	return &priceLevel{price: price, orders: list.New()}
}

func (l *priceLevel) empty() bool { return l.orders.Len() == 0 }

// volume sums the remaining quantity of every order in the level, skipping
// orders already expired at nowMs.
func (l *priceLevel) volume(nowMs int64) decimal.Decimal {
	total := decimal.Zero
	for e := l.orders.Front(); e != nil; e = e.Next() {
		o := e.Value.(*domain.Order)
		if o.IsExpired(nowMs) {
			continue
		}
		total = total.Add(o.Remaining())
	}
	return total
}

// side is one sorted half of the book. Levels are kept sorted by insertLevel:
// bids descending, asks ascending, so index 0 is always the best price.
type side struct {
	bids   bool
	levels []*priceLevel
}

func (s *side) best() *priceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// betterOrEqual reports whether a level at price a has priority over (or ties)
// price b on this side.
func (s *side) betterOrEqual(a, b decimal.Decimal) bool {
	if s.bids {
		return a.GreaterThanOrEqual(b)
	}
	return a.LessThanOrEqual(b)
}

// find returns the level with the exact price, or nil.
func (s *side) find(price decimal.Decimal) *priceLevel {
	for _, l := range s.levels {
		if l.price.Equal(price) {
			return l
		}
	}
	return nil
}

// insertLevel places a new level keeping the side sorted.
func (s *side) insertLevel(l *priceLevel) {
	at := len(s.levels)
	for i, cur := range s.levels {
		if s.bids && l.price.GreaterThan(cur.price) || !s.bids && l.price.LessThan(cur.price) {
			at = i
			break
		}
	}
	s.levels = append(s.levels, nil)
	copy(s.levels[at+1:], s.levels[at:])
	s.levels[at] = l
}

func (s *side) removeLevel(l *priceLevel) {
	for i, cur := range s.levels {
		if cur == l {
			s.levels = append(s.levels[:i], s.levels[i+1:]...)
			return
		}
	}
}
