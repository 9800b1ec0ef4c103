package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommandType routes an envelope without inspecting its payload.
type CommandType uint8

const (
	CmdUnknown CommandType = iota
	CmdLimitOrder
	CmdMarketOrder
	CmdCancelOrder
	CmdCancelAll
)

// Command is the envelope for every mutating request. Nonce is the client
// idempotency key: replays return the previously computed result.
type Command struct {
	Nonce       uint64
	TimestampMs int64
	Type        CommandType

	LimitOrder  *LimitOrderCmd
	MarketOrder *MarketOrderCmd
	CancelOrder *CancelOrderCmd
	CancelAll   *CancelAllCmd
}

type LimitOrderCmd struct {
	TraderID      int64
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	TimeInForce   TimeInForce
	ExpireAt      int64 // unix ms, GTD only
	ClientOrderID string
}

type MarketOrderCmd struct {
	TraderID      int64
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	PriceLimit    *decimal.Decimal // optional sweep cap
	ClientOrderID string
}

type CancelOrderCmd struct {
	TraderID int64
	OrderID  int64
}

type CancelAllCmd struct {
	TraderID int64
	Symbol   string // optional filter, empty matches all
	Side     Side   // optional filter, empty matches both
}

// ResultMeta annotates every result with its envelope bookkeeping.
type ResultMeta struct {
	Nonce       uint64
	IsDuplicate bool
	ReceivedAt  time.Time
}

// TradeFill is the per-match view returned to the caller.
type TradeFill struct {
	MatchedOrderID int64
	Price          decimal.Decimal
	Quantity       decimal.Decimal
}

// OrderResult reports the outcome of a limit or market order command.
type OrderResult struct {
	OrderID   int64
	Status    OrderStatus
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Fills     []TradeFill
}

// CancelResult reports a single-order cancel.
type CancelResult struct {
	OrderID  int64
	Status   OrderStatus
	Unfilled decimal.Decimal
}

// CancelAllResult reports a bulk cancel.
type CancelAllResult struct {
	Count    int
	OrderIDs []int64
}

// Result is the envelope mirror of Command: exactly one variant is set, or Err.
type Result struct {
	Meta      ResultMeta
	Order     *OrderResult
	Cancel    *CancelResult
	CancelAll *CancelAllResult
	Err       error
}
