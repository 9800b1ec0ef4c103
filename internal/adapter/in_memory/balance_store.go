// Package in_memory provides the non-durable adapters: the balance store the
// engine runs on by default, plus repository and cache doubles for tests.
package in_memory

import (
	"sync"
	"time"

	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/port"
)

// BalanceStore keeps every balance record in a map guarded by one mutex.
// All mutations are computed and committed in memory; nothing is held across
// an I/O boundary.
type BalanceStore struct {
	mu       sync.Mutex
	balances map[domain.BalanceID]*domain.Balance
}

var _ port.BalanceStore = (*BalanceStore)(nil)

func NewBalanceStore() *BalanceStore {
	return &BalanceStore{balances: make(map[domain.BalanceID]*domain.Balance)}
}

func (s *BalanceStore) Get(id domain.BalanceID) *domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[id]
	if !ok {
		return nil
	}
	return b.Clone()
}

func (s *BalanceStore) GetOrCreate(id domain.BalanceID, now time.Time) *domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id, now).Clone()
}

func (s *BalanceStore) getOrCreateLocked(id domain.BalanceID, now time.Time) *domain.Balance {
	b, ok := s.balances[id]
	if !ok {
		b = domain.NewBalance(id.AccountID, id.Asset, now)
		s.balances[id] = b
	}
	return b
}

// Update runs fn against a working copy and commits it only on success, so a
// failed operation leaves the stored record (and its version) untouched.
func (s *BalanceStore) Update(id domain.BalanceID, now time.Time, fn func(*domain.Balance) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.getOrCreateLocked(id, now)
	work := live.Clone()
	if err := fn(work); err != nil {
		return err
	}
	*live = *work
	return nil
}

// ExecuteBatch validates every operation against working copies first and
// commits all of them only if every one passed. Repeated ids within a batch
// observe the accumulated state of earlier legs.
func (s *BalanceStore) ExecuteBatch(ids []domain.BalanceID, now time.Time, fns []func(*domain.Balance) error) error {
	if len(ids) != len(fns) {
		return &domain.InvalidParameterError{Field: "batch", Reason: "ids/ops length mismatch"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := make(map[domain.BalanceID]*domain.Balance, len(ids))
	for i, id := range ids {
		w, ok := work[id]
		if !ok {
			w = s.getOrCreateLocked(id, now).Clone()
			work[id] = w
		}
		if err := fns[i](w); err != nil {
			return err
		}
	}
	for id, w := range work {
		*s.balances[id] = *w
	}
	return nil
}

func (s *BalanceStore) List(accountID int64) []*domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Balance
	for id, b := range s.balances {
		if id.AccountID == accountID {
			out = append(out, b.Clone())
		}
	}
	return out
}
