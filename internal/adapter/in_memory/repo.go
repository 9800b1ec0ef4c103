package in_memory

import (
	"context"
	"sync"

	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/port"
)

// Repo is the in-memory Repository used when no postgres DSN is configured.
type Repo struct {
	mu     sync.Mutex
	orders map[int64]*domain.Order
	trades []*domain.Trade
}

var _ port.Repository = (*Repo)(nil)

func NewRepo() *Repo {
	return &Repo{orders: make(map[int64]*domain.Order)}
}

func (r *Repo) SaveOrder(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *Repo) SaveTrade(ctx context.Context, t *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.trades = append(r.trades, &cp)
	return nil
}

func (r *Repo) SaveBalance(ctx context.Context, b *domain.Balance) error {
	return nil
}

func (r *Repo) LoadOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Order
	for _, o := range r.orders {
		if o.Symbol == symbol && !o.Status.Terminal() && o.Remaining().IsPositive() {
			cp := *o
			res = append(res, &cp)
		}
	}
	return res, nil
}

// Trades returns a copy of the append-only trade history.
func (r *Repo) Trades() []*domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}
