// Package dto defines the REST request/response shapes. Monetary fields
// travel as strings to avoid float precision loss.
package dto

import "time"

type PlaceOrderRequest struct {
	Nonce         uint64 `json:"nonce" binding:"required"`
	TraderID      int64  `json:"trader_id" binding:"required"`
	Symbol        string `json:"symbol" binding:"required"`
	Side          string `json:"side" binding:"required"`
	Type          string `json:"type" binding:"required"` // LIMIT or MARKET
	Price         string `json:"price,omitempty"`
	Quantity      string `json:"quantity" binding:"required"`
	TimeInForce   string `json:"time_in_force,omitempty"` // default GTC
	ExpireAt      int64  `json:"expire_at,omitempty"`     // unix ms, GTD only
	PriceLimit    string `json:"price_limit,omitempty"`   // market orders
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type Fill struct {
	MatchedOrderID int64  `json:"matched_order_id"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
}

type PlaceOrderResponse struct {
	Nonce     uint64 `json:"nonce"`
	Duplicate bool   `json:"duplicate,omitempty"`
	OrderID   int64  `json:"order_id"`
	Status    string `json:"status"`
	Filled    string `json:"filled"`
	Remaining string `json:"remaining"`
	Fills     []Fill `json:"fills"`
}

type CancelOrderRequest struct {
	Nonce    uint64 `json:"nonce" binding:"required"`
	TraderID int64  `json:"trader_id" binding:"required"`
}

type CancelOrderResponse struct {
	Nonce     uint64 `json:"nonce"`
	Duplicate bool   `json:"duplicate,omitempty"`
	OrderID   int64  `json:"order_id"`
	Status    string `json:"status"`
	Unfilled  string `json:"unfilled"`
}

type CancelAllRequest struct {
	Nonce    uint64 `json:"nonce" binding:"required"`
	TraderID int64  `json:"trader_id" binding:"required"`
	Symbol   string `json:"symbol,omitempty"`
	Side     string `json:"side,omitempty"`
}

type CancelAllResponse struct {
	Nonce     uint64  `json:"nonce"`
	Duplicate bool    `json:"duplicate,omitempty"`
	Count     int     `json:"count"`
	OrderIDs  []int64 `json:"order_ids"`
}

type DepthLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

type DepthResponse struct {
	Symbol    string       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

type CreateAccountRequest struct {
	AccountID int64 `json:"account_id" binding:"required"`
	UserID    int64 `json:"user_id" binding:"required"`
}

type FundsRequest struct {
	AccountID int64  `json:"account_id" binding:"required"`
	Asset     string `json:"asset" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

type TransferRequest struct {
	FromAccountID int64  `json:"from_account_id" binding:"required"`
	ToAccountID   int64  `json:"to_account_id" binding:"required"`
	Asset         string `json:"asset" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

type BalanceView struct {
	Asset     string    `json:"asset"`
	Available string    `json:"available"`
	Frozen    string    `json:"frozen"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BalancesResponse struct {
	AccountID int64         `json:"account_id"`
	Balances  []BalanceView `json:"balances"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
