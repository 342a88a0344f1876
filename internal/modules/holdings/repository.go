// Package holdings persists account positions.
package holdings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/database"
	"github.com/aristath/aggregator/internal/domain"
)

// Repository handles holding persistence. The (account_id,
// provider_holding_id) unique pair is the sync upsert key.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new holding repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

const holdingColumns = `id, account_id, provider_holding_id, symbol, security_name, asset_type,
       quantity, cost_basis, market_value, currency, average_price, current_price,
       is_active, last_synced_at, provider_metadata, created_at, updated_at`

// FindByID retrieves a holding by id. Returns nil when not found.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE id = ?`
	return scanHolding(r.db.QueryRowContext(ctx, query, id))
}

// FindByAccountAndSymbol retrieves an account's holdings in one symbol.
func (r *Repository) FindByAccountAndSymbol(ctx context.Context, accountID, symbol string) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings
		WHERE account_id = ? AND symbol = ? ORDER BY created_at ASC`
	return r.queryHoldings(ctx, query, accountID, symbol)
}

// FindByProviderHoldingID retrieves the holding a provider id maps to within
// an account. This is the sync upsert key.
func (r *Repository) FindByProviderHoldingID(ctx context.Context, accountID, providerHoldingID string) (*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings
		WHERE account_id = ? AND provider_holding_id = ?`
	return scanHolding(r.db.QueryRowContext(ctx, query, accountID, providerHoldingID))
}

// ListByAccount retrieves an account's holdings.
func (r *Repository) ListByAccount(ctx context.Context, accountID string, activeOnly bool) ([]*domain.Holding, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE account_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY symbol ASC`
	return r.queryHoldings(ctx, query, accountID)
}

// ListByUser retrieves all holdings across a user's accounts.
func (r *Repository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*domain.Holding, error) {
	query := `
		SELECT ` + qualify(holdingColumns, "h") + `
		FROM holdings h
		JOIN accounts a ON a.id = h.account_id
		JOIN provider_connections c ON c.id = a.connection_id
		WHERE c.user_id = ?`
	if activeOnly {
		query += ` AND h.is_active = 1`
	}
	query += ` ORDER BY h.symbol ASC`
	return r.queryHoldings(ctx, query, userID)
}

// Save upserts a holding by id.
func (r *Repository) Save(ctx context.Context, h *domain.Holding) error {
	return r.save(ctx, r.db, h)
}

// SaveMany upserts a batch of holdings in one database transaction.
func (r *Repository) SaveMany(ctx context.Context, hs []*domain.Holding) error {
	if len(hs) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, h := range hs {
			if err := r.save(ctx, tx, h); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) save(ctx context.Context, db execer, h *domain.Holding) error {
	metadata, err := marshalMetadata(h.ProviderMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO holdings (
			id, account_id, provider_holding_id, symbol, security_name, asset_type,
			quantity, cost_basis, market_value, currency, average_price, current_price,
			is_active, last_synced_at, provider_metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			security_name = excluded.security_name,
			asset_type = excluded.asset_type,
			quantity = excluded.quantity,
			cost_basis = excluded.cost_basis,
			market_value = excluded.market_value,
			currency = excluded.currency,
			average_price = excluded.average_price,
			current_price = excluded.current_price,
			is_active = excluded.is_active,
			last_synced_at = excluded.last_synced_at,
			provider_metadata = excluded.provider_metadata,
			updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		h.ID,
		h.AccountID,
		h.ProviderHoldingID,
		h.Symbol,
		h.SecurityName,
		string(h.AssetType),
		h.Quantity.String(),
		h.CostBasis.Amount.String(),
		h.MarketValue.Amount.String(),
		h.Currency,
		nullMoney(h.AveragePrice),
		nullMoney(h.CurrentPrice),
		boolToInt(h.IsActive),
		nullUnix(h.LastSyncedAt),
		metadata,
		h.CreatedAt.Unix(),
		h.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}
	return nil
}

// Delete removes a holding row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM holdings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

// DeleteByAccount removes all of an account's holdings, returning the count.
func (r *Repository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM holdings WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete holdings: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) queryHoldings(ctx context.Context, query string, args ...interface{}) ([]*domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var hs []*domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		hs = append(hs, h)
	}
	return hs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var (
		h            domain.Holding
		assetType    string
		quantity     string
		costBasis    string
		marketValue  string
		averagePrice sql.NullString
		currentPrice sql.NullString
		isActive     int
		lastSyncedAt sql.NullInt64
		metadata     sql.NullString
		createdAt    int64
		updatedAt    int64
	)

	err := row.Scan(
		&h.ID, &h.AccountID, &h.ProviderHoldingID, &h.Symbol, &h.SecurityName, &assetType,
		&quantity, &costBasis, &marketValue, &h.Currency, &averagePrice, &currentPrice,
		&isActive, &lastSyncedAt, &metadata, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan holding: %w", err)
	}

	h.AssetType = domain.AssetType(assetType)

	if h.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q for holding %s: %w", quantity, h.ID, err)
	}
	cb, err := decimal.NewFromString(costBasis)
	if err != nil {
		return nil, fmt.Errorf("invalid cost basis %q for holding %s: %w", costBasis, h.ID, err)
	}
	h.CostBasis = domain.Money{Amount: cb, Currency: h.Currency}
	mv, err := decimal.NewFromString(marketValue)
	if err != nil {
		return nil, fmt.Errorf("invalid market value %q for holding %s: %w", marketValue, h.ID, err)
	}
	h.MarketValue = domain.Money{Amount: mv, Currency: h.Currency}

	if averagePrice.Valid {
		ap, err := decimal.NewFromString(averagePrice.String)
		if err != nil {
			return nil, fmt.Errorf("invalid average price for holding %s: %w", h.ID, err)
		}
		m := domain.Money{Amount: ap, Currency: h.Currency}
		h.AveragePrice = &m
	}
	if currentPrice.Valid {
		cp, err := decimal.NewFromString(currentPrice.String)
		if err != nil {
			return nil, fmt.Errorf("invalid current price for holding %s: %w", h.ID, err)
		}
		m := domain.Money{Amount: cp, Currency: h.Currency}
		h.CurrentPrice = &m
	}

	h.IsActive = isActive != 0
	h.LastSyncedAt = unixPtr(lastSyncedAt)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &h.ProviderMetadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for holding %s: %w", h.ID, err)
		}
	}
	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &h, nil
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
