package connections

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/testutil"
)

func newActiveConnection(t *testing.T, userID string, now time.Time) *domain.ProviderConnection {
	t.Helper()
	conn, err := domain.NewProviderConnection(userID, "provider-1", "schwab", nil, now)
	require.NoError(t, err)

	expires := now.Add(time.Hour)
	creds := domain.NewCredentials(domain.CredentialOAuth2, []byte("sealed"), &expires)
	require.NoError(t, conn.MarkConnected(&creds, now))
	return conn
}

func TestSaveAndFindByID(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	conn := newActiveConnection(t, "user-1", now)
	require.NoError(t, repo.Save(ctx, conn))

	got, err := repo.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conn.ID, got.ID)
	assert.Equal(t, domain.ConnectionActive, got.Status)
	require.NotNil(t, got.Credentials)
	assert.Equal(t, domain.CredentialOAuth2, got.Credentials.Type)
	assert.Equal(t, []byte("sealed"), got.Credentials.Encrypted)
	require.NotNil(t, got.Credentials.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour).Unix(), got.Credentials.ExpiresAt.Unix())
	require.NotNil(t, got.ConnectedAt)
}

func TestFindByIDMissing(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.FindByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveUpsertsExisting(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	conn := newActiveConnection(t, "user-1", now)
	require.NoError(t, repo.Save(ctx, conn))

	conn.MarkDisconnected(now.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, conn))

	got, err := repo.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionDisconnected, got.Status)
	assert.Nil(t, got.Credentials)
}

func TestFindActiveByUser(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	active := newActiveConnection(t, "user-1", now)
	require.NoError(t, repo.Save(ctx, active))

	pending, err := domain.NewProviderConnection("user-1", "provider-2", "tradernet", nil, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, pending))

	other := newActiveConnection(t, "user-2", now)
	require.NoError(t, repo.Save(ctx, other))

	got, err := repo.FindActiveByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	all, err := repo.FindByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindByUserAndSlug(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	conn := newActiveConnection(t, "user-1", now)
	require.NoError(t, repo.Save(ctx, conn))

	got, err := repo.FindByUserAndSlug(ctx, "user-1", "schwab")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.FindByUserAndSlug(ctx, "user-1", "csv_import")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindExpiringSoon(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	expiring := newActiveConnection(t, "user-1", now) // expires in 1h
	require.NoError(t, repo.Save(ctx, expiring))

	longLived, err := domain.NewProviderConnection("user-1", "provider-2", "tradernet", nil, now)
	require.NoError(t, err)
	far := now.Add(30 * 24 * time.Hour)
	creds := domain.NewCredentials(domain.CredentialOAuth2, []byte("sealed"), &far)
	require.NoError(t, longLived.MarkConnected(&creds, now))
	require.NoError(t, repo.Save(ctx, longLived))

	got, err := repo.FindExpiringSoon(ctx, now, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, expiring.ID, got[0].ID)
}

func TestCacheReadThrough(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	cacheDB := testutil.NewCacheDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	repo := NewRepository(db, zerolog.Nop())
	cache := NewCache(cacheDB, 5*time.Minute, zerolog.Nop())
	cached := NewCachedRepository(repo, cache)

	conn := newActiveConnection(t, "user-1", now)
	require.NoError(t, cached.Save(ctx, conn))

	// First read populates the cache.
	got, err := cached.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, cache.Get(ctx, conn.ID))

	// Delete the row behind the cache's back: reads now come from cache.
	require.NoError(t, repo.Delete(ctx, conn.ID))
	got, err = cached.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Invalidation exposes the truth.
	cache.Invalidate(ctx, conn.ID)
	got, err = cached.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheSaveInvalidates(t *testing.T) {
	db := testutil.NewAggregatorDB(t)
	cacheDB := testutil.NewCacheDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	repo := NewRepository(db, zerolog.Nop())
	cache := NewCache(cacheDB, 5*time.Minute, zerolog.Nop())
	cached := NewCachedRepository(repo, cache)

	conn := newActiveConnection(t, "user-1", now)
	require.NoError(t, cached.Save(ctx, conn))
	_, err := cached.FindByID(ctx, conn.ID)
	require.NoError(t, err)

	conn.MarkDisconnected(now.Add(time.Minute))
	require.NoError(t, cached.Save(ctx, conn))

	got, err := cached.FindByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionDisconnected, got.Status)
}

func TestCacheExpiredEntryIsMiss(t *testing.T) {
	cacheDB := testutil.NewCacheDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	cache := NewCache(cacheDB, -time.Second, zerolog.Nop())
	conn := newActiveConnection(t, "user-1", now)
	cache.Set(ctx, conn)

	assert.Nil(t, cache.Get(ctx, conn.ID))

	purged, err := cache.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
