// Package port declares the capability interfaces the core depends on,
// keeping storage backends pluggable (in-memory for tests, postgres/redis in
// production wiring).
package port

import (
	"context"
	"time"

	"github.com/thy3368/rustlob-sub005/internal/book"
	"github.com/thy3368/rustlob-sub005/internal/domain"
)

// BalanceStore owns the Balance records. Update runs fn against the live
// record under the store's synchronization; mutations made by fn are kept only
// when fn returns nil.
type BalanceStore interface {
	// Get returns the balance for the key, or nil when none exists yet.
	Get(id domain.BalanceID) *domain.Balance
	// GetOrCreate returns the balance, lazily creating a zero record.
	GetOrCreate(id domain.BalanceID, now time.Time) *domain.Balance
	// Update applies fn atomically to the (lazily created) record.
	Update(id domain.BalanceID, now time.Time, fn func(*domain.Balance) error) error
	// ExecuteBatch validates every operation against a copy of current state
	// and applies all of them only if every validation passed.
	ExecuteBatch(ids []domain.BalanceID, now time.Time, fns []func(*domain.Balance) error) error
	// List returns copies of every balance owned by the account.
	List(accountID int64) []*domain.Balance
}

// Repository persists orders and trades. Calls are best-effort write-behind
// from the sequencer; the in-memory engine is the source of truth.
type Repository interface {
	SaveOrder(ctx context.Context, o *domain.Order) error
	SaveTrade(ctx context.Context, t *domain.Trade) error
	SaveBalance(ctx context.Context, b *domain.Balance) error
	LoadOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error)
}

// Cache holds aggregated book-depth snapshots for read traffic.
type Cache interface {
	SetDepth(ctx context.Context, symbol string, d *book.Depth) error
	GetDepth(ctx context.Context, symbol string) (*book.Depth, error)
}
