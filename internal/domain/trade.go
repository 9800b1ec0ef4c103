package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable matching event. Price is always the maker's resting
// price; TakerSide is the side of the incoming order.
type Trade struct {
	ID           int64
	Symbol       string
	TakerOrderID int64
	MakerOrderID int64
	TakerID      int64
	MakerID      int64
	TakerSide    Side
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Timestamp    time.Time
}

// Notional is the quote-asset value of the trade (price * quantity).
func (t *Trade) Notional() decimal.Decimal { return t.Price.Mul(t.Quantity) }
