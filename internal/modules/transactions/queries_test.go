package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/modules/accounts"
	"github.com/aristath/aggregator/internal/modules/connections"
	"github.com/aristath/aggregator/internal/modules/holdings"
	"github.com/aristath/aggregator/internal/ownership"
	"github.com/aristath/aggregator/internal/testutil"
)

func newQueriesFixture(t *testing.T) (*Queries, *Repository, *sql.DB) {
	t.Helper()
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())
	verifier := ownership.NewVerifier(
		connections.NewRepository(db, zerolog.Nop()),
		accounts.NewRepository(db, zerolog.Nop()),
		holdings.NewRepository(db, zerolog.Nop()),
		repo,
		zerolog.Nop(),
	)
	return NewQueries(repo, verifier, zerolog.Nop()), repo, db
}

func TestGetTransactionOwnership(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, now)
	txn := newTxn(t, acct.ID, "PT-1", "-500", now)
	require.NoError(t, repo.Save(ctx, txn))

	got, err := q.GetTransaction(ctx, "user-1", txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, MoneyDTO{Amount: "-500", Currency: "USD"}, got.Amount)
	assert.Equal(t, string(domain.TxnTrade), got.Type)

	_, err = q.GetTransaction(ctx, "user-2", txn.ID)
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))

	_, err = q.GetTransaction(ctx, "user-1", "missing")
	assert.Equal(t, domain.CodeTransactionNotFound, domain.CodeOf(err))
}

func TestListTransactionsByAccountPaging(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, now)
	for i := 0; i < 5; i++ {
		txn := newTxn(t, acct.ID, fmt.Sprintf("PT-%d", i), "-100", now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Save(ctx, txn))
	}

	page, err := q.ListTransactionsByAccount(ctx, "user-1", acct.ID, nil, 3, 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "PT-4", page.Transactions[0].ProviderTransactionID)

	page, err = q.ListTransactionsByAccount(ctx, "user-1", acct.ID, nil, 3, 3)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.False(t, page.HasMore)

	_, err = q.ListTransactionsByAccount(ctx, "user-2", acct.ID, nil, 3, 0)
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))
}

func TestListTransactionsByAccountTypeFilter(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, now)
	require.NoError(t, repo.Save(ctx, newTxn(t, acct.ID, "PT-1", "-500", now)))

	deposit, err := domain.NewTransaction(acct.ID, "PT-2", domain.TxnTransfer, domain.SubtypeDeposit,
		domain.TxnSettled, domain.MustMoney("1000", "USD"), "wire in", nil, nil, nil, nil, nil, nil,
		now.Add(time.Hour), nil, nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, deposit))

	trade := domain.TxnTrade
	page, err := q.ListTransactionsByAccount(ctx, "user-1", acct.ID, &trade, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "PT-1", page.Transactions[0].ProviderTransactionID)
	assert.False(t, page.HasMore)
}

func TestListTransactionsByDateRange(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, now)
	for i := 0; i < 4; i++ {
		txn := newTxn(t, acct.ID, fmt.Sprintf("PT-%d", i), "-100", now.AddDate(0, 0, i))
		require.NoError(t, repo.Save(ctx, txn))
	}

	got, err := q.ListTransactionsByDateRange(ctx, "user-1", acct.ID, now.AddDate(0, 0, 1), now.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "PT-1", got[0].ProviderTransactionID)
	assert.Equal(t, "PT-2", got[1].ProviderTransactionID)

	_, err = q.ListTransactionsByDateRange(ctx, "user-1", acct.ID, now, now)
	assert.Equal(t, domain.CodeInvalidDateRange, domain.CodeOf(err))
}

func TestListSecurityTransactions(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, now)
	symbol := "AAPL"
	asset := domain.AssetEquity
	buy, err := domain.NewTransaction(acct.ID, "PT-1", domain.TxnTrade, domain.SubtypeBuy,
		domain.TxnSettled, domain.MustMoney("-1000", "USD"), "buy AAPL", &asset, &symbol, nil, nil,
		nil, nil, now, nil, nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, buy))
	require.NoError(t, repo.Save(ctx, newTxn(t, acct.ID, "PT-2", "-500", now)))

	got, err := q.ListSecurityTransactions(ctx, "user-1", acct.ID, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PT-1", got[0].ProviderTransactionID)
	require.NotNil(t, got[0].Symbol)
	assert.Equal(t, "AAPL", *got[0].Symbol)
	require.NotNil(t, got[0].AssetType)
	assert.Equal(t, string(domain.AssetEquity), *got[0].AssetType)
}
