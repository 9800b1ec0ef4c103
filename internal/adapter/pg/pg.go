// Package pg is the pgx-backed Repository adapter. The sequencer writes
// behind the in-memory engine; these upserts are idempotent so replays after
// a restart are harmless.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/port"
)

var _ port.Repository = (*Repo)(nil)

type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo opens a connection pool; call Close when finished.
func NewRepo(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *Repo) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO orders(id, client_order_id, trader_id, symbol, side, type, time_in_force,
                   price, quantity, filled, status, expire_at, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  filled = EXCLUDED.filled,
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at
`, o.ID, o.ClientOrderID, o.TraderID, o.Symbol, string(o.Side), string(o.Type),
		string(o.TimeInForce), o.Price, o.Quantity, o.Filled, string(o.Status),
		o.ExpireAt, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *Repo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO trades(id, symbol, taker_order_id, maker_order_id, taker_id, maker_id,
                   taker_side, price, quantity, executed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, t.ID, t.Symbol, t.TakerOrderID, t.MakerOrderID, t.TakerID, t.MakerID,
		string(t.TakerSide), t.Price, t.Quantity, t.Timestamp)
	return err
}

func (r *Repo) SaveBalance(ctx context.Context, b *domain.Balance) error {
	if b == nil {
		return errors.New("nil balance")
	}
	tag, err := r.pool.Exec(ctx, `
INSERT INTO balances(account_id, asset, available, frozen, version, updated_at)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (account_id, asset) DO UPDATE SET
  available = EXCLUDED.available,
  frozen = EXCLUDED.frozen,
  version = EXCLUDED.version,
  updated_at = EXCLUDED.updated_at
WHERE balances.version < EXCLUDED.version
`, b.ID.AccountID, b.ID.Asset, b.Available, b.Frozen, b.Version, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// a newer version already landed, out-of-order write-behind
		var cur uint64
		_ = r.pool.QueryRow(ctx,
			`SELECT version FROM balances WHERE account_id = $1 AND asset = $2`,
			b.ID.AccountID, b.ID.Asset).Scan(&cur)
		return &domain.VersionConflictError{Expected: b.Version, Actual: cur}
	}
	return nil
}

// LoadOpenOrders returns resting orders for a symbol in arrival order, used
// to rebuild a book on startup.
func (r *Repo) LoadOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, client_order_id, trader_id, symbol, side, type, time_in_force,
       price, quantity, filled, status, expire_at, created_at, updated_at
FROM orders
WHERE symbol = $1 AND status IN ('PENDING', 'PARTIALLY_FILLED')
ORDER BY created_at ASC, id ASC
`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, typ, tif, status string
		if err := rows.Scan(&o.ID, &o.ClientOrderID, &o.TraderID, &o.Symbol, &side, &typ,
			&tif, &o.Price, &o.Quantity, &o.Filled, &status, &o.ExpireAt,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Type = domain.OrderType(typ)
		o.TimeInForce = domain.TimeInForce(tif)
		o.Status = domain.OrderStatus(status)
		res = append(res, &o)
	}
	return res, rows.Err()
}
