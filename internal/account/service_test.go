package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thy3368/rustlob-sub005/internal/adapter/in_memory"
	"github.com/thy3368/rustlob-sub005/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(in_memory.NewBalanceStore())
	s.CreateAccount(1, 100)
	s.CreateAccount(2, 200)
	return s
}

func TestCheckAndFreeze(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))

	require.NoError(t, s.CheckAndFreeze(1, "USDT", d("60")))

	b := s.Balance(1, "USDT")
	require.NotNil(t, b)
	assert.True(t, b.Available.Equal(d("40")))
	assert.True(t, b.Frozen.Equal(d("60")))
	assert.Equal(t, uint64(2), b.Version, "credit and freeze each bump the version")
}

func TestCheckAndFreezeInsufficient(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("50")))

	err := s.CheckAndFreeze(1, "USDT", d("60"))
	var insufficient *domain.InsufficientAvailableError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(d("60")))
	assert.True(t, insufficient.Available.Equal(d("50")))

	// failed operation must not mutate the record
	b := s.Balance(1, "USDT")
	assert.True(t, b.Available.Equal(d("50")))
	assert.True(t, b.Frozen.IsZero())
	assert.Equal(t, uint64(1), b.Version)
}

func TestUnfreezeMoreThanFrozenIsDefect(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))
	require.NoError(t, s.CheckAndFreeze(1, "USDT", d("30")))

	err := s.Unfreeze(1, "USDT", d("31"))
	var insufficient *domain.InsufficientFrozenError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Frozen.Equal(d("30")))
}

func TestDebitAndDebitFrozen(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))
	require.NoError(t, s.CheckAndFreeze(1, "USDT", d("40")))

	require.NoError(t, s.Debit(1, "USDT", d("10")))
	require.NoError(t, s.DebitFrozen(1, "USDT", d("15")))

	b := s.Balance(1, "USDT")
	assert.True(t, b.Available.Equal(d("50")))
	assert.True(t, b.Frozen.Equal(d("25")))

	var insufficient *domain.InsufficientFrozenError
	require.ErrorAs(t, s.DebitFrozen(1, "USDT", d("26")), &insufficient)
}

func TestCreditCreatesBalanceLazily(t *testing.T) {
	s := newTestService(t)
	assert.Nil(t, s.Balance(1, "BTC"))
	require.NoError(t, s.Credit(1, "BTC", d("2")))
	require.NotNil(t, s.Balance(1, "BTC"))
}

func TestCreditOverflow(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", domain.MaxAmount))
	assert.ErrorIs(t, s.Credit(1, "USDT", d("1")), domain.ErrOverflow)

	b := s.Balance(1, "USDT")
	assert.True(t, b.Available.Equal(domain.MaxAmount), "overflowing credit must not land")
}

func TestUnfreezeOverflow(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))
	require.NoError(t, s.CheckAndFreeze(1, "USDT", d("60")))
	require.NoError(t, s.Credit(1, "USDT", domain.MaxAmount.Sub(d("40"))))

	// releasing the reservation would push available past the bound
	assert.ErrorIs(t, s.Unfreeze(1, "USDT", d("60")), domain.ErrOverflow)

	b := s.Balance(1, "USDT")
	assert.True(t, b.Available.Equal(domain.MaxAmount))
	assert.True(t, b.Frozen.Equal(d("60")))
}

func TestAccountStatusGates(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))
	require.NoError(t, s.CheckAndFreeze(1, "USDT", d("50")))

	assert.ErrorIs(t, s.Credit(3, "USDT", d("1")), domain.ErrAccountNotFound)

	require.NoError(t, s.SetAccountStatus(1, domain.AccountHeld))
	assert.ErrorIs(t, s.Credit(1, "USDT", d("1")), domain.ErrAccountFrozen)
	assert.ErrorIs(t, s.CheckAndFreeze(1, "USDT", d("1")), domain.ErrAccountFrozen)
	// settlement against an already-taken reservation still works
	assert.NoError(t, s.DebitFrozen(1, "USDT", d("10")))

	require.NoError(t, s.SetAccountStatus(1, domain.AccountClosed))
	assert.ErrorIs(t, s.Debit(1, "USDT", d("1")), domain.ErrAccountClosed)

	// closed is terminal
	var transition *domain.InvalidStatusTransitionError
	assert.ErrorAs(t, s.SetAccountStatus(1, domain.AccountActive), &transition)
}

func TestTransfer(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))

	require.NoError(t, s.Transfer(1, 2, "USDT", d("30")))
	assert.True(t, s.Balance(1, "USDT").Available.Equal(d("70")))
	assert.True(t, s.Balance(2, "USDT").Available.Equal(d("30")))

	var insufficient *domain.InsufficientAvailableError
	require.ErrorAs(t, s.Transfer(1, 2, "USDT", d("71")), &insufficient)
	assert.True(t, s.Balance(2, "USDT").Available.Equal(d("30")), "failed transfer credits nothing")
}

func TestExecuteBatchAllOrNothing(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("100")))
	require.NoError(t, s.Credit(2, "BTC", d("1")))

	// last leg fails: nothing may land
	err := s.ExecuteBatch([]Op{
		{Kind: OpDebit, AccountID: 1, Asset: "USDT", Amount: d("50")},
		{Kind: OpCredit, AccountID: 2, Asset: "USDT", Amount: d("50")},
		{Kind: OpDebit, AccountID: 2, Asset: "BTC", Amount: d("2")},
	})
	var insufficient *domain.InsufficientAvailableError
	require.ErrorAs(t, err, &insufficient)

	assert.True(t, s.Balance(1, "USDT").Available.Equal(d("100")))
	assert.Nil(t, s.Balance(2, "USDT"))
	assert.True(t, s.Balance(2, "BTC").Available.Equal(d("1")))
}

func TestExecuteBatchRepeatedKeySeesAccumulatedState(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(1, "USDT", d("10")))

	// second debit only succeeds because the first leg's credit is visible
	err := s.ExecuteBatch([]Op{
		{Kind: OpCredit, AccountID: 1, Asset: "USDT", Amount: d("5")},
		{Kind: OpDebit, AccountID: 1, Asset: "USDT", Amount: d("12")},
	})
	require.NoError(t, err)
	assert.True(t, s.Balance(1, "USDT").Available.Equal(d("3")))
}

func TestBatchRejectsNonPositiveAmount(t *testing.T) {
	s := newTestService(t)
	err := s.ExecuteBatch([]Op{{Kind: OpCredit, AccountID: 1, Asset: "USDT", Amount: d("0")}})
	var invalid *domain.InvalidParameterError
	assert.ErrorAs(t, err, &invalid)
}
