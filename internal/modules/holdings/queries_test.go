package holdings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/modules/accounts"
	"github.com/aristath/aggregator/internal/modules/connections"
	"github.com/aristath/aggregator/internal/modules/transactions"
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
		repo,
		transactions.NewRepository(db, zerolog.Nop()),
		zerolog.Nop(),
	)
	return NewQueries(repo, verifier, zerolog.Nop()), repo, db
}

func seedPosition(t *testing.T, repo *Repository, accountID, providerID, symbol string, assetType domain.AssetType, costBasis, marketValue string, now time.Time) *domain.Holding {
	t.Helper()
	h, err := domain.NewHolding(accountID, providerID, symbol, symbol+" Inc", assetType,
		decimal.NewFromInt(10), domain.MustMoney(costBasis, "USD"), domain.MustMoney(marketValue, "USD"),
		nil, nil, nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), h))
	return h
}

func TestGetHoldingProjection(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, "user-1", now)
	h := seedPosition(t, repo, acct.ID, "PH-1", "AAPL", domain.AssetEquity, "1000", "1100", now)

	got, err := q.GetHolding(ctx, "user-1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "10", got.Quantity)
	assert.Equal(t, MoneyDTO{Amount: "100", Currency: "USD"}, got.UnrealizedGainLoss)
	require.NotNil(t, got.UnrealizedPercent)
	assert.Equal(t, "10.00", *got.UnrealizedPercent)

	_, err = q.GetHolding(ctx, "user-2", h.ID)
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))

	_, err = q.GetHolding(ctx, "user-1", "missing")
	assert.Equal(t, domain.CodeHoldingNotFound, domain.CodeOf(err))
}

func TestListHoldingsByAccountAggregates(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, "user-1", now)
	seedPosition(t, repo, acct.ID, "PH-1", "AAPL", domain.AssetEquity, "1000", "1100", now)
	seedPosition(t, repo, acct.ID, "PH-2", "VTI", domain.AssetETF, "500", "450", now)

	got, err := q.ListHoldingsByAccount(ctx, "user-1", acct.ID, true, HoldingFilter{})
	require.NoError(t, err)
	require.Len(t, got.Holdings, 2)

	agg := got.TotalByCurrency["USD"]
	assert.Equal(t, "1550", agg.MarketValue)
	assert.Equal(t, "1500", agg.CostBasis)
	assert.Equal(t, "50", agg.UnrealizedGainLoss)

	_, err = q.ListHoldingsByAccount(ctx, "user-2", acct.ID, true, HoldingFilter{})
	assert.Equal(t, domain.CodeNotOwnedByUser, domain.CodeOf(err))
}

func TestListHoldingsFilters(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, "user-1", now)
	seedPosition(t, repo, acct.ID, "PH-1", "AAPL", domain.AssetEquity, "1000", "1100", now)
	seedPosition(t, repo, acct.ID, "PH-2", "VTI", domain.AssetETF, "500", "450", now)

	etf := string(domain.AssetETF)
	got, err := q.ListHoldingsByAccount(ctx, "user-1", acct.ID, true, HoldingFilter{AssetType: &etf})
	require.NoError(t, err)
	require.Len(t, got.Holdings, 1)
	assert.Equal(t, "VTI", got.Holdings[0].Symbol)
	assert.Equal(t, "450", got.TotalByCurrency["USD"].MarketValue)

	got, err = q.ListHoldingsByAccount(ctx, "user-1", acct.ID, true, HoldingFilter{Symbol: "aapl"})
	require.NoError(t, err)
	require.Len(t, got.Holdings, 1)
	assert.Equal(t, "AAPL", got.Holdings[0].Symbol)

	bogus := "BEANIE_BABIES"
	_, err = q.ListHoldingsByAccount(ctx, "user-1", acct.ID, true, HoldingFilter{AssetType: &bogus})
	assert.Equal(t, domain.CodeInvalidAssetType, domain.CodeOf(err))
}

func TestListHoldingsByUserOwnershipChain(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	mine := seedAccount(t, db, "user-1", now)
	seedPosition(t, repo, mine.ID, "PH-1", "AAPL", domain.AssetEquity, "1000", "1100", now)

	theirs := seedAccount(t, db, "user-2", now)
	seedPosition(t, repo, theirs.ID, "PH-2", "MSFT", domain.AssetEquity, "2000", "2200", now)

	got, err := q.ListHoldingsByUser(ctx, "user-1", true, HoldingFilter{})
	require.NoError(t, err)
	require.Len(t, got.Holdings, 1)
	assert.Equal(t, "AAPL", got.Holdings[0].Symbol)
	assert.Equal(t, "1100", got.TotalByCurrency["USD"].MarketValue)
}

func TestListHoldingsExcludesInactive(t *testing.T) {
	q, repo, db := newQueriesFixture(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	acct := seedAccount(t, db, "user-1", now)
	seedPosition(t, repo, acct.ID, "PH-1", "AAPL", domain.AssetEquity, "1000", "1100", now)
	sold := seedPosition(t, repo, acct.ID, "PH-2", "GME", domain.AssetEquity, "500", "50", now)
	sold.Deactivate(now)
	require.NoError(t, repo.Save(ctx, sold))

	got, err := q.ListHoldingsByAccount(ctx, "user-1", acct.ID, true, HoldingFilter{})
	require.NoError(t, err)
	require.Len(t, got.Holdings, 1)
	assert.Equal(t, "AAPL", got.Holdings[0].Symbol)

	all, err := q.ListHoldingsByAccount(ctx, "user-1", acct.ID, false, HoldingFilter{})
	require.NoError(t, err)
	assert.Len(t, all.Holdings, 2)
}
