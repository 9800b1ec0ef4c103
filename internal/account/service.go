// Package account implements the balance service: atomic reservation and fund
// movement for every trader. No collaborator mutates a Balance directly; this
// service's operations are the entire funds surface.
package account

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/port"
)

// OpKind tags one leg of a batch operation.
type OpKind uint8

const (
	OpFreeze OpKind = iota + 1
	OpUnfreeze
	OpCredit
	OpDebit
	OpDebitFrozen
	OpTransfer
)

// Op is a single balance operation, batchable via ExecuteBatch. Transfer
// moves Amount from AccountID's available to ToAccountID's available.
type Op struct {
	Kind        OpKind
	AccountID   int64
	ToAccountID int64 // transfer only
	Asset       string
	Amount      decimal.Decimal
}

// Service owns the account registry and the balance store. It is shared
// across all symbols and safe for concurrent use.
type Service struct {
	store port.BalanceStore
	now   func() time.Time

	mu       sync.RWMutex
	accounts map[int64]*domain.Account
}

func NewService(store port.BalanceStore) *Service {
	return &Service{
		store:    store,
		now:      time.Now,
		accounts: make(map[int64]*domain.Account),
	}
}

// CreateAccount registers a new active account.
func (s *Service) CreateAccount(id, userID int64) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return a
	}
	now := s.now()
	a := &domain.Account{ID: id, UserID: userID, Status: domain.AccountActive, CreatedAt: now, UpdatedAt: now}
	s.accounts[id] = a
	return a
}

// SetAccountStatus moves an account between Active/Frozen/Closed. Closed is
// terminal.
func (s *Service) SetAccountStatus(id int64, status domain.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.Status == domain.AccountClosed && status != domain.AccountClosed {
		return &domain.InvalidStatusTransitionError{From: string(a.Status), To: string(status)}
	}
	a.Status = status
	a.UpdatedAt = s.now()
	return nil
}

// checkAccount gates every mutating operation on account status.
func (s *Service) checkAccount(id int64) error {
	s.mu.RLock()
	a, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrAccountNotFound
	}
	switch a.Status {
	case domain.AccountHeld:
		return domain.ErrAccountFrozen
	case domain.AccountClosed:
		return domain.ErrAccountClosed
	}
	return nil
}

func (s *Service) checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.InvalidParameterError{Field: "amount", Reason: "must be positive"}
	}
	if amount.GreaterThan(domain.MaxAmount) {
		return domain.ErrOverflow
	}
	return nil
}

// CheckAndFreeze atomically verifies available >= amount and moves it to
// frozen. There is no window in which another operation can observe the
// checked-but-unfrozen state.
func (s *Service) CheckAndFreeze(accountID int64, asset string, amount decimal.Decimal) error {
	if err := s.checkAccount(accountID); err != nil {
		return err
	}
	if err := s.checkAmount(amount); err != nil {
		return err
	}
	now := s.now()
	return s.store.Update(domain.BalanceID{AccountID: accountID, Asset: asset}, now,
		func(b *domain.Balance) error { return b.Freeze(amount, now) })
}

// Unfreeze releases a reservation back to available. Failure means more was
// released than reserved, which is an upstream defect.
func (s *Service) Unfreeze(accountID int64, asset string, amount decimal.Decimal) error {
	if err := s.checkAmount(amount); err != nil {
		return err
	}
	now := s.now()
	return s.store.Update(domain.BalanceID{AccountID: accountID, Asset: asset}, now,
		func(b *domain.Balance) error { return b.Unfreeze(amount, now) })
}

// Credit increases available, creating the balance record if absent.
func (s *Service) Credit(accountID int64, asset string, amount decimal.Decimal) error {
	if err := s.checkAccount(accountID); err != nil {
		return err
	}
	if err := s.checkAmount(amount); err != nil {
		return err
	}
	now := s.now()
	return s.store.Update(domain.BalanceID{AccountID: accountID, Asset: asset}, now,
		func(b *domain.Balance) error { return b.Credit(amount, now) })
}

// Debit decreases available.
func (s *Service) Debit(accountID int64, asset string, amount decimal.Decimal) error {
	if err := s.checkAccount(accountID); err != nil {
		return err
	}
	if err := s.checkAmount(amount); err != nil {
		return err
	}
	now := s.now()
	return s.store.Update(domain.BalanceID{AccountID: accountID, Asset: asset}, now,
		func(b *domain.Balance) error { return b.Debit(amount, now) })
}

// DebitFrozen decreases frozen directly (settlement, forced liquidation).
func (s *Service) DebitFrozen(accountID int64, asset string, amount decimal.Decimal) error {
	if err := s.checkAmount(amount); err != nil {
		return err
	}
	now := s.now()
	return s.store.Update(domain.BalanceID{AccountID: accountID, Asset: asset}, now,
		func(b *domain.Balance) error { return b.DebitFrozen(amount, now) })
}

// Transfer moves available funds between two accounts atomically.
func (s *Service) Transfer(fromID, toID int64, asset string, amount decimal.Decimal) error {
	return s.ExecuteBatch([]Op{{
		Kind:        OpTransfer,
		AccountID:   fromID,
		ToAccountID: toID,
		Asset:       asset,
		Amount:      amount,
	}})
}

// Balance returns a copy of one balance record, or nil when none exists.
func (s *Service) Balance(accountID int64, asset string) *domain.Balance {
	b := s.store.Get(domain.BalanceID{AccountID: accountID, Asset: asset})
	if b == nil {
		return nil
	}
	return b.Clone()
}

// Balances returns copies of every balance the account owns.
func (s *Service) Balances(accountID int64) []*domain.Balance {
	return s.store.List(accountID)
}

// ExecuteBatch applies a set of operations all-or-nothing: every operation is
// validated against current state first, and mutations land only when every
// validation passes. Settlement's multi-leg movements rely on this.
func (s *Service) ExecuteBatch(ops []Op) error {
	return s.executeBatch(ops, false)
}

// checkExists requires only that the account is registered, regardless of
// status.
func (s *Service) checkExists(id int64) error {
	s.mu.RLock()
	_, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrAccountNotFound
	}
	return nil
}

// executeBatch validates and applies ops. A settlement batch moves funds a
// trade already committed to, so every leg stays valid even when a
// counterparty's account was frozen after the order was placed; only account
// existence is required.
func (s *Service) executeBatch(ops []Op, settlement bool) error {
	if len(ops) == 0 {
		return nil
	}
	now := s.now()
	var ids []domain.BalanceID
	var fns []func(*domain.Balance) error

	for _, op := range ops {
		op := op
		if err := s.checkAmount(op.Amount); err != nil {
			return err
		}
		switch op.Kind {
		case OpFreeze, OpCredit, OpDebit:
			if settlement {
				if err := s.checkExists(op.AccountID); err != nil {
					return err
				}
			} else if err := s.checkAccount(op.AccountID); err != nil {
				return err
			}
		case OpTransfer:
			if err := s.checkAccount(op.AccountID); err != nil {
				return err
			}
			if err := s.checkAccount(op.ToAccountID); err != nil {
				return err
			}
		case OpUnfreeze, OpDebitFrozen:
			if err := s.checkExists(op.AccountID); err != nil {
				return err
			}
		default:
			return &domain.InvalidParameterError{Field: "kind", Reason: "unknown operation"}
		}

		id := domain.BalanceID{AccountID: op.AccountID, Asset: op.Asset}
		switch op.Kind {
		case OpFreeze:
			ids = append(ids, id)
			fns = append(fns, func(b *domain.Balance) error { return b.Freeze(op.Amount, now) })
		case OpUnfreeze:
			ids = append(ids, id)
			fns = append(fns, func(b *domain.Balance) error { return b.Unfreeze(op.Amount, now) })
		case OpCredit:
			ids = append(ids, id)
			fns = append(fns, func(b *domain.Balance) error { return b.Credit(op.Amount, now) })
		case OpDebit:
			ids = append(ids, id)
			fns = append(fns, func(b *domain.Balance) error { return b.Debit(op.Amount, now) })
		case OpDebitFrozen:
			ids = append(ids, id)
			fns = append(fns, func(b *domain.Balance) error { return b.DebitFrozen(op.Amount, now) })
		case OpTransfer:
			ids = append(ids, id)
			fns = append(fns, func(b *domain.Balance) error { return b.Debit(op.Amount, now) })
			ids = append(ids, domain.BalanceID{AccountID: op.ToAccountID, Asset: op.Asset})
			fns = append(fns, func(b *domain.Balance) error { return b.Credit(op.Amount, now) })
		}
	}
	return s.store.ExecuteBatch(ids, now, fns)
}
