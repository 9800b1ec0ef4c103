package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance errors.
var (
	ErrOverflow        = errors.New("balance overflow")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountFrozen   = errors.New("account frozen")
	ErrAccountClosed   = errors.New("account closed")
)

// Order errors.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrPriceOutOfRange    = errors.New("price out of range")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrInvalidTimeInForce = errors.New("invalid time in force")
	ErrSelfTrade          = errors.New("self trade prevented")
)

// InsufficientAvailableError is returned when available < required. The caller
// gets both figures so it can retry with adjusted size.
type InsufficientAvailableError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientAvailableError) Error() string {
	return fmt.Sprintf("insufficient available balance: required %s, available %s",
		e.Required, e.Available)
}

// InsufficientFrozenError indicates an upstream defect: more was released or
// settled than was ever reserved.
type InsufficientFrozenError struct {
	Required decimal.Decimal
	Frozen   decimal.Decimal
}

func (e *InsufficientFrozenError) Error() string {
	return fmt.Sprintf("insufficient frozen balance: required %s, frozen %s",
		e.Required, e.Frozen)
}

// VersionConflictError reports an optimistic-lock failure on a balance record.
type VersionConflictError struct {
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("balance version conflict: expected %d, actual %d", e.Expected, e.Actual)
}

// InvalidStatusTransitionError reports a lifecycle move the state machine does
// not allow.
type InvalidStatusTransitionError struct {
	From string
	To   string
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// FillOrKillError is returned when a FOK order cannot be fully filled; no
// trades and no book mutation happened.
type FillOrKillError struct {
	Requested decimal.Decimal
	Fillable  decimal.Decimal
}

func (e *FillOrKillError) Error() string {
	return fmt.Sprintf("fill-or-kill rejected: requested %s, fillable %s", e.Requested, e.Fillable)
}

// InvalidParameterError is a protocol-level validation failure.
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}
