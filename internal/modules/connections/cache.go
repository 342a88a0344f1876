package connections

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// Cache is a read-through connection cache backed by the cache database.
// It is an optimization, never authoritative: every failure path degrades to
// a miss (fail-open) and the caller falls through to the repository. Cached
// credentials stay encrypted; plaintext never reaches this layer.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates a connection cache with the given TTL.
func NewCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("service", "connection_cache").Logger(),
	}
}

// cachedConnection is the JSON shape stored in the cache table.
type cachedConnection struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ProviderID    string     `json:"provider_id"`
	ProviderSlug  string     `json:"provider_slug"`
	Alias         *string    `json:"alias,omitempty"`
	Status        string     `json:"status"`
	CredType      *string    `json:"credential_type,omitempty"`
	CredEncrypted []byte     `json:"encrypted_credentials,omitempty"`
	CredExpiresAt *time.Time `json:"credentials_expires_at,omitempty"`
	ConnectedAt   *time.Time `json:"connected_at,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Get returns the cached connection, or nil on miss. Expired entries and
// undecodable payloads are misses.
func (c *Cache) Get(ctx context.Context, connectionID string) *domain.ProviderConnection {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM provider_connection_cache WHERE cache_key = ?`,
		cacheKey(connectionID),
	).Scan(&payload, &expiresAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn().Err(err).Msg("Cache read failed, treating as miss")
		}
		return nil
	}

	if time.Now().Unix() >= expiresAt {
		return nil
	}

	var cached cachedConnection
	if err := json.Unmarshal(payload, &cached); err != nil {
		c.log.Warn().Err(err).Msg("Cache payload undecodable, treating as miss")
		return nil
	}

	return cached.toDomain()
}

// Set stores a connection. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, conn *domain.ProviderConnection) {
	payload, err := json.Marshal(fromDomain(conn))
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache encode failed, skipping set")
		return
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO provider_connection_cache (cache_key, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at
	`, cacheKey(conn.ID), payload, time.Now().Add(c.ttl).Unix())
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache write failed, continuing")
	}
}

// Invalidate removes a cached connection. Failures are logged and swallowed.
func (c *Cache) Invalidate(ctx context.Context, connectionID string) {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM provider_connection_cache WHERE cache_key = ?`,
		cacheKey(connectionID),
	)
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache invalidation failed, continuing")
	}
}

// PurgeExpired drops entries past their TTL. Called by the maintenance
// scheduler.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM provider_connection_cache WHERE expires_at <= ?`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func cacheKey(connectionID string) string {
	return "connection:" + connectionID
}

func fromDomain(conn *domain.ProviderConnection) cachedConnection {
	cached := cachedConnection{
		ID:           conn.ID,
		UserID:       conn.UserID,
		ProviderID:   conn.ProviderID,
		ProviderSlug: conn.ProviderSlug,
		Alias:        conn.Alias,
		Status:       string(conn.Status),
		ConnectedAt:  conn.ConnectedAt,
		LastSyncAt:   conn.LastSyncAt,
		CreatedAt:    conn.CreatedAt,
		UpdatedAt:    conn.UpdatedAt,
	}
	if conn.Credentials != nil {
		credType := string(conn.Credentials.Type)
		cached.CredType = &credType
		cached.CredEncrypted = conn.Credentials.Encrypted
		cached.CredExpiresAt = conn.Credentials.ExpiresAt
	}
	return cached
}

func (c cachedConnection) toDomain() *domain.ProviderConnection {
	conn := &domain.ProviderConnection{
		ID:           c.ID,
		UserID:       c.UserID,
		ProviderID:   c.ProviderID,
		ProviderSlug: c.ProviderSlug,
		Alias:        c.Alias,
		Status:       domain.ConnectionStatus(c.Status),
		ConnectedAt:  c.ConnectedAt,
		LastSyncAt:   c.LastSyncAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.CredType != nil {
		creds := domain.NewCredentials(domain.CredentialType(*c.CredType), c.CredEncrypted, c.CredExpiresAt)
		conn.Credentials = &creds
	}
	return conn
}

// CachedRepository layers the cache over the repository: reads by id go
// through the cache, writes invalidate it. All other finders pass through.
type CachedRepository struct {
	*Repository
	cache *Cache
}

// NewCachedRepository wraps a repository with the cache.
func NewCachedRepository(repo *Repository, cache *Cache) *CachedRepository {
	return &CachedRepository{Repository: repo, cache: cache}
}

// FindByID checks the cache before hitting the database, populating the
// cache on a miss that finds a row.
func (r *CachedRepository) FindByID(ctx context.Context, id string) (*domain.ProviderConnection, error) {
	if conn := r.cache.Get(ctx, id); conn != nil {
		return conn, nil
	}

	conn, err := r.Repository.FindByID(ctx, id)
	if err != nil || conn == nil {
		return conn, err
	}
	r.cache.Set(ctx, conn)
	return conn, nil
}

// Save persists the connection and invalidates its cache entry.
func (r *CachedRepository) Save(ctx context.Context, conn *domain.ProviderConnection) error {
	if err := r.Repository.Save(ctx, conn); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, conn.ID)
	return nil
}

// Delete removes the connection and invalidates its cache entry.
func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, id)
	return nil
}
