package in_memory

import (
	"context"
	"sync"

	"github.com/thy3368/rustlob-sub005/internal/book"
	"github.com/thy3368/rustlob-sub005/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[string]*book.Depth
}

var _ port.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*book.Depth)}
}

func (c *Cache) SetDepth(ctx context.Context, symbol string, d *book.Depth) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *d
	c.store[symbol] = &cp
	return nil
}

func (c *Cache) GetDepth(ctx context.Context, symbol string) (*book.Depth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.store[symbol]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}
