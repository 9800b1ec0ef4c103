package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string
type OrderStatus string
type TimeInForce string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"

	// GTC rests until cancelled, IOC cancels any unfilled remainder, FOK fills
	// completely or not at all, GTD rests until ExpireAt, PostOnly rejects any
	// order that would take liquidity at entry.
	GTC      TimeInForce = "GTC"
	IOC      TimeInForce = "IOC"
	FOK      TimeInForce = "FOK"
	GTD      TimeInForce = "GTD"
	PostOnly TimeInForce = "POST_ONLY"

	Pending         OrderStatus = "PENDING"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
	Rejected        OrderStatus = "REJECTED"
	Expired         OrderStatus = "EXPIRED"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (t TimeInForce) Valid() bool {
	switch t {
	case GTC, IOC, FOK, GTD, PostOnly:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

// Order is a resting or incoming order. IDs are snowflake-assigned by the
// sequencer; Seq is the per-book arrival counter used for FIFO tie-break.
type Order struct {
	ID            int64
	ClientOrderID string
	TraderID      int64
	Symbol        string
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Filled        decimal.Decimal
	Status        OrderStatus
	Seq           uint64
	ExpireAt      int64 // unix ms, GTD only; zero means no expiry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (o *Order) Remaining() decimal.Decimal { return o.Quantity.Sub(o.Filled) }

func (o *Order) IsExpired(nowMs int64) bool {
	return o.TimeInForce == GTD && o.ExpireAt > 0 && nowMs >= o.ExpireAt
}

// Fill records a matched quantity and moves the status along
// Pending -> PartiallyFilled -> Filled.
func (o *Order) Fill(qty decimal.Decimal, now time.Time) {
	o.Filled = o.Filled.Add(qty)
	if o.Filled.GreaterThanOrEqual(o.Quantity) {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
	o.UpdatedAt = now
}
