// Package snapshots persists the balance snapshot history.
package snapshots

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

// Repository handles balance snapshot persistence. Snapshots are insert-only
// history; Save never updates an existing row.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

const snapshotColumns = `id, account_id, balance, available_balance, holdings_value, cash_value,
       currency, source, provider_metadata, captured_at, created_at`

// FindByID retrieves a snapshot by id. Returns nil when not found.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.BalanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE id = ?`
	return scanSnapshot(r.db.QueryRowContext(ctx, query, id))
}

// FindByAccountID retrieves an account's snapshots, newest first, optionally
// filtered by source and limited.
func (r *Repository) FindByAccountID(ctx context.Context, accountID string, source *domain.SnapshotSource, limit int) ([]*domain.BalanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE account_id = ?`
	args := []interface{}{accountID}
	if source != nil {
		query += ` AND source = ?`
		args = append(args, string(*source))
	}
	query += ` ORDER BY captured_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.querySnapshots(ctx, query, args...)
}

// FindByAccountIDInRange retrieves an account's snapshots within
// [start, end], oldest first.
func (r *Repository) FindByAccountIDInRange(ctx context.Context, accountID string, start, end time.Time, source *domain.SnapshotSource) ([]*domain.BalanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots
		WHERE account_id = ? AND captured_at >= ? AND captured_at <= ?`
	args := []interface{}{accountID, start.Unix(), end.Unix()}
	if source != nil {
		query += ` AND source = ?`
		args = append(args, string(*source))
	}
	query += ` ORDER BY captured_at ASC`
	return r.querySnapshots(ctx, query, args...)
}

// FindLatestByAccountID retrieves an account's most recent snapshot.
func (r *Repository) FindLatestByAccountID(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots
		WHERE account_id = ? ORDER BY captured_at DESC LIMIT 1`
	return scanSnapshot(r.db.QueryRowContext(ctx, query, accountID))
}

// FindByUserIDInRange retrieves snapshots across all of a user's accounts
// within [start, end], oldest first.
func (r *Repository) FindByUserIDInRange(ctx context.Context, userID string, start, end time.Time, source *domain.SnapshotSource) ([]*domain.BalanceSnapshot, error) {
	query := `
		SELECT ` + qualify(snapshotColumns, "s") + `
		FROM balance_snapshots s
		JOIN accounts a ON a.id = s.account_id
		JOIN provider_connections c ON c.id = a.connection_id
		WHERE c.user_id = ? AND s.captured_at >= ? AND s.captured_at <= ?`
	args := []interface{}{userID, start.Unix(), end.Unix()}
	if source != nil {
		query += ` AND s.source = ?`
		args = append(args, string(*source))
	}
	query += ` ORDER BY s.captured_at ASC`
	return r.querySnapshots(ctx, query, args...)
}

// FindLatestByUserID retrieves the most recent snapshot of each of a user's
// accounts.
func (r *Repository) FindLatestByUserID(ctx context.Context, userID string) ([]*domain.BalanceSnapshot, error) {
	query := `
		SELECT ` + qualify(snapshotColumns, "s") + `
		FROM balance_snapshots s
		JOIN accounts a ON a.id = s.account_id
		JOIN provider_connections c ON c.id = a.connection_id
		WHERE c.user_id = ?
		  AND s.captured_at = (
			SELECT MAX(s2.captured_at) FROM balance_snapshots s2 WHERE s2.account_id = s.account_id
		  )
		GROUP BY s.account_id
		ORDER BY s.account_id ASC`
	return r.querySnapshots(ctx, query, userID)
}

// Save inserts a snapshot. History is never rewritten; a duplicate id fails.
func (r *Repository) Save(ctx context.Context, snap *domain.BalanceSnapshot) error {
	metadata, err := marshalMetadata(snap.ProviderMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO balance_snapshots (
			id, account_id, balance, available_balance, holdings_value, cash_value,
			currency, source, provider_metadata, captured_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		snap.ID,
		snap.AccountID,
		snap.Balance.Amount.String(),
		nullMoney(snap.AvailableBalance),
		nullMoney(snap.HoldingsValue),
		nullMoney(snap.CashValue),
		snap.Currency,
		string(snap.Source),
		metadata,
		snap.CapturedAt.Unix(),
		snap.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes a snapshot row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM balance_snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// CountByAccountID returns the number of snapshots for an account.
func (r *Repository) CountByAccountID(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM balance_snapshots WHERE account_id = ?`, accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

func (r *Repository) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]*domain.BalanceSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.BalanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*domain.BalanceSnapshot, error) {
	var (
		snap       domain.BalanceSnapshot
		balance    string
		available  sql.NullString
		holdings   sql.NullString
		cash       sql.NullString
		source     string
		metadata   sql.NullString
		capturedAt int64
		createdAt  int64
	)

	err := row.Scan(
		&snap.ID, &snap.AccountID, &balance, &available, &holdings, &cash,
		&snap.Currency, &source, &metadata, &capturedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	d, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q for snapshot %s: %w", balance, snap.ID, err)
	}
	snap.Balance = domain.Money{Amount: d, Currency: snap.Currency}
	snap.Source = domain.SnapshotSource(source)

	for _, field := range []struct {
		raw  sql.NullString
		dest **domain.Money
	}{
		{available, &snap.AvailableBalance},
		{holdings, &snap.HoldingsValue},
		{cash, &snap.CashValue},
	} {
		if !field.raw.Valid {
			continue
		}
		v, err := decimal.NewFromString(field.raw.String)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for snapshot %s: %w", snap.ID, err)
		}
		m := domain.Money{Amount: v, Currency: snap.Currency}
		*field.dest = &m
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &snap.ProviderMetadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for snapshot %s: %w", snap.ID, err)
		}
	}
	snap.CapturedAt = time.Unix(capturedAt, 0).UTC()
	snap.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &snap, nil
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

func nullMoney(m *domain.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.Amount.String(), Valid: true}
}
