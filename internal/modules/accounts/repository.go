// Package accounts persists provider accounts and serves account queries.
package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/domain"
)

// Repository handles account persistence. Monetary amounts are stored as
// decimal strings to avoid float drift; metadata is a JSON column.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

const accountColumns = `id, connection_id, provider_account_id, account_number_masked, name,
       account_type, balance, currency, available_balance, is_active,
       last_synced_at, provider_metadata, created_at, updated_at`

// FindByID retrieves an account by id. Returns nil when not found.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// FindByConnectionID retrieves a connection's accounts.
func (r *Repository) FindByConnectionID(ctx context.Context, connectionID string, activeOnly bool) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE connection_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at ASC`
	return r.queryAccounts(ctx, query, connectionID)
}

// FindByUserID retrieves a user's accounts across all connections,
// optionally filtered by account type.
func (r *Repository) FindByUserID(ctx context.Context, userID string, activeOnly bool, accountType *domain.AccountType) ([]*domain.Account, error) {
	query := `
		SELECT ` + qualify(accountColumns, "a") + `
		FROM accounts a
		JOIN provider_connections c ON c.id = a.connection_id
		WHERE c.user_id = ?`
	args := []interface{}{userID}
	if activeOnly {
		query += ` AND a.is_active = 1`
	}
	if accountType != nil {
		query += ` AND a.account_type = ?`
		args = append(args, string(*accountType))
	}
	query += ` ORDER BY a.created_at ASC`
	return r.queryAccounts(ctx, query, args...)
}

// FindByProviderAccountID retrieves the account a provider id maps to within
// a connection. This is the sync upsert key.
func (r *Repository) FindByProviderAccountID(ctx context.Context, connectionID, providerAccountID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE connection_id = ? AND provider_account_id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, connectionID, providerAccountID))
}

// FindNeedingSync retrieves active accounts not synced since the threshold.
func (r *Repository) FindNeedingSync(ctx context.Context, threshold time.Time) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE is_active = 1 AND (last_synced_at IS NULL OR last_synced_at < ?)
		ORDER BY last_synced_at ASC`
	return r.queryAccounts(ctx, query, threshold.Unix())
}

// Save upserts an account by id. Chain FK fields are never overwritten.
func (r *Repository) Save(ctx context.Context, acct *domain.Account) error {
	metadata, err := marshalMetadata(acct.ProviderMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (
			id, connection_id, provider_account_id, account_number_masked, name,
			account_type, balance, currency, available_balance, is_active,
			last_synced_at, provider_metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_number_masked = excluded.account_number_masked,
			name = excluded.name,
			account_type = excluded.account_type,
			balance = excluded.balance,
			currency = excluded.currency,
			available_balance = excluded.available_balance,
			is_active = excluded.is_active,
			last_synced_at = excluded.last_synced_at,
			provider_metadata = excluded.provider_metadata,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		acct.ID,
		acct.ConnectionID,
		acct.ProviderAccountID,
		acct.NumberMasked,
		acct.Name,
		string(acct.Type),
		acct.Balance.Amount.String(),
		acct.Currency,
		nullDecimal(acct.AvailableBalance),
		boolToInt(acct.IsActive),
		nullUnix(acct.LastSyncedAt),
		metadata,
		acct.CreatedAt.Unix(),
		acct.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// Delete removes an account row. Normal operation deactivates instead.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func (r *Repository) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accts []*domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accts = append(accts, acct)
	}
	return accts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		acct         domain.Account
		accountType  string
		balance      string
		available    sql.NullString
		isActive     int
		lastSyncedAt sql.NullInt64
		metadata     sql.NullString
		createdAt    int64
		updatedAt    int64
	)

	err := row.Scan(
		&acct.ID, &acct.ConnectionID, &acct.ProviderAccountID, &acct.NumberMasked, &acct.Name,
		&accountType, &balance, &acct.Currency, &available, &isActive,
		&lastSyncedAt, &metadata, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	acct.Type = domain.AccountType(accountType)

	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q for account %s: %w", balance, acct.ID, err)
	}
	acct.Balance = domain.Money{Amount: amount, Currency: acct.Currency}

	if available.Valid {
		avail, err := decimal.NewFromString(available.String)
		if err != nil {
			return nil, fmt.Errorf("invalid available balance %q for account %s: %w", available.String, acct.ID, err)
		}
		m := domain.Money{Amount: avail, Currency: acct.Currency}
		acct.AvailableBalance = &m
	}

	acct.IsActive = isActive != 0
	acct.LastSyncedAt = unixPtr(lastSyncedAt)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &acct.ProviderMetadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for account %s: %w", acct.ID, err)
		}
	}
	acct.CreatedAt = time.Unix(createdAt, 0).UTC()
	acct.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &acct, nil
}

// qualify prefixes each column in a comma-separated list with a table alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(parts, ", ")
}

func marshalMetadata(m map[string]interface{}) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullDecimal(m *domain.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.Amount.String(), Valid: true}
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
