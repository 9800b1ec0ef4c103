package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds every balance and notional. Additions past it fail with
// ErrOverflow instead of silently growing.
var MaxAmount = decimal.New(1, 18) // 1e18

// BalanceID is the composite key (account, asset).
type BalanceID struct {
	AccountID int64
	Asset     string
}

func (id BalanceID) String() string { return fmt.Sprintf("%d:%s", id.AccountID, id.Asset) }

// Balance tracks available and frozen funds for one (account, asset) pair.
// Version increments on every mutation; records are created lazily on first
// credit or freeze and never deleted.
type Balance struct {
	ID        BalanceID
	Available decimal.Decimal
	Frozen    decimal.Decimal
	Version   uint64
	UpdatedAt time.Time
}

func NewBalance(accountID int64, asset string, now time.Time) *Balance {
	return &Balance{
		ID:        BalanceID{AccountID: accountID, Asset: asset},
		Available: decimal.Zero,
		Frozen:    decimal.Zero,
		UpdatedAt: now,
	}
}

func (b *Balance) Total() decimal.Decimal { return b.Available.Add(b.Frozen) }

func (b *Balance) touch(now time.Time) {
	b.Version++
	b.UpdatedAt = now
}

// Credit adds to available.
func (b *Balance) Credit(amount decimal.Decimal, now time.Time) error {
	if b.Available.Add(amount).GreaterThan(MaxAmount) {
		return ErrOverflow
	}
	b.Available = b.Available.Add(amount)
	b.touch(now)
	return nil
}

// Debit removes from available.
func (b *Balance) Debit(amount decimal.Decimal, now time.Time) error {
	if b.Available.LessThan(amount) {
		return &InsufficientAvailableError{Required: amount, Available: b.Available}
	}
	b.Available = b.Available.Sub(amount)
	b.touch(now)
	return nil
}

// Freeze moves amount from available to frozen in one step; the sufficiency
// check and the move are not separable (check-and-freeze).
func (b *Balance) Freeze(amount decimal.Decimal, now time.Time) error {
	if b.Available.LessThan(amount) {
		return &InsufficientAvailableError{Required: amount, Available: b.Available}
	}
	b.Available = b.Available.Sub(amount)
	b.Frozen = b.Frozen.Add(amount)
	b.touch(now)
	return nil
}

// Unfreeze moves amount from frozen back to available.
func (b *Balance) Unfreeze(amount decimal.Decimal, now time.Time) error {
	if b.Frozen.LessThan(amount) {
		return &InsufficientFrozenError{Required: amount, Frozen: b.Frozen}
	}
	if b.Available.Add(amount).GreaterThan(MaxAmount) {
		return ErrOverflow
	}
	b.Frozen = b.Frozen.Sub(amount)
	b.Available = b.Available.Add(amount)
	b.touch(now)
	return nil
}

// DebitFrozen removes amount from frozen directly (trade settlement).
func (b *Balance) DebitFrozen(amount decimal.Decimal, now time.Time) error {
	if b.Frozen.LessThan(amount) {
		return &InsufficientFrozenError{Required: amount, Frozen: b.Frozen}
	}
	b.Frozen = b.Frozen.Sub(amount)
	b.touch(now)
	return nil
}

// Clone returns an independent copy, used by the validate phase of batch
// execution so failed batches leave stored records untouched.
func (b *Balance) Clone() *Balance {
	cp := *b
	return &cp
}

type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountHeld   AccountStatus = "FROZEN"
	AccountClosed AccountStatus = "CLOSED"
)

// Account is the owner of a set of balances. Frozen accounts keep their funds
// but may not trade; closed accounts reject everything.
type Account struct {
	ID        int64
	UserID    int64
	Status    AccountStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) Active() bool { return a.Status == AccountActive }
