// Package connections persists and manages provider connections, the pivot
// entity between users and the providers they link.
package connections

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// Repository handles provider connection persistence. Connections are never
// hard-deleted in normal operation; Delete exists for administrative cleanup.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new connection repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "connections").Logger(),
	}
}

const connectionColumns = `id, user_id, provider_id, provider_slug, alias, status,
       credential_type, encrypted_credentials, credentials_expires_at,
       connected_at, last_sync_at, created_at, updated_at`

// FindByID retrieves a connection by id. Returns nil when not found.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.ProviderConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return scanConnection(row)
}

// FindByUserID retrieves all connections for a user, newest first.
func (r *Repository) FindByUserID(ctx context.Context, userID string) ([]*domain.ProviderConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections
		WHERE user_id = ? ORDER BY created_at DESC`
	return r.queryConnections(ctx, query, userID)
}

// FindByUserAndProvider retrieves a user's connections to one provider.
func (r *Repository) FindByUserAndProvider(ctx context.Context, userID, providerID string) ([]*domain.ProviderConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections
		WHERE user_id = ? AND provider_id = ? ORDER BY created_at DESC`
	return r.queryConnections(ctx, query, userID, providerID)
}

// FindByUserAndSlug retrieves a user's connections to a provider slug. Used
// by file import to find-or-create its single connection per slug.
func (r *Repository) FindByUserAndSlug(ctx context.Context, userID, slug string) ([]*domain.ProviderConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections
		WHERE user_id = ? AND provider_slug = ? ORDER BY created_at DESC`
	return r.queryConnections(ctx, query, userID, slug)
}

// FindActiveByUser retrieves a user's ACTIVE connections.
func (r *Repository) FindActiveByUser(ctx context.Context, userID string) ([]*domain.ProviderConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections
		WHERE user_id = ? AND status = ? ORDER BY created_at DESC`
	return r.queryConnections(ctx, query, userID, string(domain.ConnectionActive))
}

// FindExpiringSoon retrieves ACTIVE connections whose credentials expire
// within the window. Used by the maintenance scheduler.
func (r *Repository) FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*domain.ProviderConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM provider_connections
		WHERE status = ? AND credentials_expires_at IS NOT NULL AND credentials_expires_at <= ?
		ORDER BY credentials_expires_at ASC`
	return r.queryConnections(ctx, query, string(domain.ConnectionActive), now.Add(within).Unix())
}

// Save upserts a connection by id.
func (r *Repository) Save(ctx context.Context, conn *domain.ProviderConnection) error {
	query := `
		INSERT INTO provider_connections (
			id, user_id, provider_id, provider_slug, alias, status,
			credential_type, encrypted_credentials, credentials_expires_at,
			connected_at, last_sync_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			alias = excluded.alias,
			status = excluded.status,
			credential_type = excluded.credential_type,
			encrypted_credentials = excluded.encrypted_credentials,
			credentials_expires_at = excluded.credentials_expires_at,
			connected_at = excluded.connected_at,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at
	`

	var credType sql.NullString
	var credBlob []byte
	var credExpires sql.NullInt64
	if conn.Credentials != nil {
		credType = sql.NullString{String: string(conn.Credentials.Type), Valid: true}
		credBlob = conn.Credentials.Encrypted
		if conn.Credentials.ExpiresAt != nil {
			credExpires = sql.NullInt64{Int64: conn.Credentials.ExpiresAt.Unix(), Valid: true}
		}
	}

	_, err := r.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.ProviderID,
		conn.ProviderSlug,
		nullString(conn.Alias),
		string(conn.Status),
		credType,
		credBlob,
		credExpires,
		nullUnix(conn.ConnectedAt),
		nullUnix(conn.LastSyncAt),
		conn.CreatedAt.Unix(),
		conn.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// Delete removes a connection row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM provider_connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

func (r *Repository) queryConnections(ctx context.Context, query string, args ...interface{}) ([]*domain.ProviderConnection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*domain.ProviderConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*domain.ProviderConnection, error) {
	var (
		conn        domain.ProviderConnection
		alias       sql.NullString
		status      string
		credType    sql.NullString
		credBlob    []byte
		credExpires sql.NullInt64
		connectedAt sql.NullInt64
		lastSyncAt  sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.ProviderID, &conn.ProviderSlug, &alias, &status,
		&credType, &credBlob, &credExpires,
		&connectedAt, &lastSyncAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	conn.Status = domain.ConnectionStatus(status)
	if alias.Valid {
		conn.Alias = &alias.String
	}
	if credType.Valid {
		creds := domain.NewCredentials(domain.CredentialType(credType.String), credBlob, unixPtr(credExpires))
		conn.Credentials = &creds
	}
	conn.ConnectedAt = unixPtr(connectedAt)
	conn.LastSyncAt = unixPtr(lastSyncAt)
	conn.CreatedAt = time.Unix(createdAt, 0).UTC()
	conn.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &conn, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
