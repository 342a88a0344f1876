package ownership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/domain"
)

type stubConnections struct {
	byID  map[string]*domain.ProviderConnection
	err   error
	calls int
}

func (s *stubConnections) FindByID(_ context.Context, id string) (*domain.ProviderConnection, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byID[id], nil
}

type stubAccounts struct {
	byID  map[string]*domain.Account
	calls int
}

func (s *stubAccounts) FindByID(_ context.Context, id string) (*domain.Account, error) {
	s.calls++
	return s.byID[id], nil
}

type stubHoldings struct {
	byID map[string]*domain.Holding
}

func (s *stubHoldings) FindByID(_ context.Context, id string) (*domain.Holding, error) {
	return s.byID[id], nil
}

type stubTransactions struct {
	byID map[string]*domain.Transaction
}

func (s *stubTransactions) FindByID(_ context.Context, id string) (*domain.Transaction, error) {
	return s.byID[id], nil
}

type fixture struct {
	verifier     *Verifier
	connections  *stubConnections
	accounts     *stubAccounts
	holdings     *stubHoldings
	transactions *stubTransactions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now().UTC()

	conn, err := domain.NewProviderConnection("user-1", "provider-1", "schwab", nil, now)
	require.NoError(t, err)

	acct, err := domain.NewAccount(conn.ID, "PA-1", "****1234", "Brokerage",
		domain.AccountBrokerage, domain.MustMoney("1000", "USD"), nil, true, nil, now)
	require.NoError(t, err)

	h, err := domain.NewHolding(acct.ID, "PH-1", "AAPL", "Apple Inc", domain.AssetEquity,
		decimal.NewFromInt(10), domain.MustMoney("1000", "USD"), domain.MustMoney("1100", "USD"),
		nil, nil, nil, now)
	require.NoError(t, err)

	txn, err := domain.NewTransaction(acct.ID, "PT-1", domain.TxnTrade, domain.SubtypeBuy,
		domain.TxnSettled, domain.MustMoney("-100", "USD"), "trade",
		nil, nil, nil, nil, nil, nil, now, nil, nil, now)
	require.NoError(t, err)

	f := &fixture{
		connections:  &stubConnections{byID: map[string]*domain.ProviderConnection{conn.ID: conn}},
		accounts:     &stubAccounts{byID: map[string]*domain.Account{acct.ID: acct}},
		holdings:     &stubHoldings{byID: map[string]*domain.Holding{h.ID: h}},
		transactions: &stubTransactions{byID: map[string]*domain.Transaction{txn.ID: txn}},
	}
	f.verifier = NewVerifier(f.connections, f.accounts, f.holdings, f.transactions, zerolog.Nop())
	return f
}

func (f *fixture) connectionID() string {
	for id := range f.connections.byID {
		return id
	}
	return ""
}

func (f *fixture) accountID() string {
	for id := range f.accounts.byID {
		return id
	}
	return ""
}

func (f *fixture) holdingID() string {
	for id := range f.holdings.byID {
		return id
	}
	return ""
}

func (f *fixture) transactionID() string {
	for id := range f.transactions.byID {
		return id
	}
	return ""
}

func TestVerifyConnectionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.verifier.VerifyConnectionOwnership(ctx, f.connectionID(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", conn.UserID)

	_, err = f.verifier.VerifyConnectionOwnership(ctx, f.connectionID(), "user-2")
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))

	_, err = f.verifier.VerifyConnectionOwnership(ctx, "missing", "user-1")
	assert.Equal(t, domain.CodeConnectionNotFound, domain.CodeOf(err))
}

func TestVerifyAccountOwnershipReturnsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct, conn, err := f.verifier.VerifyAccountOwnership(ctx, f.accountID(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, f.accountID(), acct.ID)
	assert.Equal(t, acct.ConnectionID, conn.ID)

	_, _, err = f.verifier.VerifyAccountOwnership(ctx, "missing", "user-1")
	assert.Equal(t, domain.CodeAccountNotFound, domain.CodeOf(err))

	_, _, err = f.verifier.VerifyAccountOwnership(ctx, f.accountID(), "user-2")
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))
}

func TestMissingAccountShortCircuitsBeforeConnectionLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.verifier.VerifyAccountOwnershipOnly(ctx, "missing", "user-1")
	assert.Equal(t, domain.CodeAccountNotFound, domain.CodeOf(err))
	assert.Equal(t, 0, f.connections.calls)
}

func TestVerifyHoldingOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.verifier.VerifyHoldingOwnership(ctx, f.holdingID(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", h.Symbol)

	_, err = f.verifier.VerifyHoldingOwnership(ctx, "missing", "user-1")
	assert.Equal(t, domain.CodeHoldingNotFound, domain.CodeOf(err))
	assert.Equal(t, 1, f.accounts.calls)

	_, err = f.verifier.VerifyHoldingOwnership(ctx, f.holdingID(), "user-2")
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))
}

func TestVerifyTransactionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.verifier.VerifyTransactionOwnership(ctx, f.transactionID(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "PT-1", txn.ProviderTransactionID)

	_, err = f.verifier.VerifyTransactionOwnership(ctx, "missing", "user-1")
	assert.Equal(t, domain.CodeTransactionNotFound, domain.CodeOf(err))

	_, err = f.verifier.VerifyTransactionOwnership(ctx, f.transactionID(), "user-2")
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))
}

func TestRepositoryFailureMapsToDatabaseError(t *testing.T) {
	f := newFixture(t)
	f.connections.err = errors.New("disk gone")
	ctx := context.Background()

	_, err := f.verifier.VerifyConnectionOwnership(ctx, f.connectionID(), "user-1")
	assert.Equal(t, domain.CodeDatabaseError, domain.CodeOf(err))
}
