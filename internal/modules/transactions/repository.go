// Package transactions persists the immutable transaction ledger.
package transactions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/database"
	"github.com/aristath/aggregator/internal/domain"
)

// Repository handles transaction persistence. The (account_id,
// provider_transaction_id) unique pair is the dedup key: sync and import
// skip rows that already exist.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

const transactionColumns = `id, account_id, provider_transaction_id, transaction_type, subtype, status,
       amount, currency, description, asset_type, symbol, security_name,
       quantity, unit_price, commission, transaction_date, settlement_date,
       provider_metadata, created_at, updated_at`

// FindByID retrieves a transaction by id. Returns nil when not found.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

// FindByAccountID retrieves an account's transactions, newest first.
func (r *Repository) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = ? ORDER BY transaction_date DESC LIMIT ? OFFSET ?`
	return r.queryTransactions(ctx, query, accountID, limit, offset)
}

// FindByAccountAndType retrieves an account's transactions of one type,
// newest first.
func (r *Repository) FindByAccountAndType(ctx context.Context, accountID string, txnType domain.TransactionType, limit, offset int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = ? AND transaction_type = ?
		ORDER BY transaction_date DESC LIMIT ? OFFSET ?`
	return r.queryTransactions(ctx, query, accountID, string(txnType), limit, offset)
}

// FindByDateRange retrieves an account's transactions within [start, end],
// oldest first.
func (r *Repository) FindByDateRange(ctx context.Context, accountID string, start, end time.Time) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = ? AND transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date ASC`
	return r.queryTransactions(ctx, query, accountID, start.Unix(), end.Unix())
}

// FindByProviderTransactionID retrieves the transaction a provider id maps
// to within an account. This is the dedup lookup.
func (r *Repository) FindByProviderTransactionID(ctx context.Context, accountID, providerTransactionID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = ? AND provider_transaction_id = ?`
	return scanTransaction(r.db.QueryRowContext(ctx, query, accountID, providerTransactionID))
}

// FindSecurityTransactions retrieves an account's transactions for one
// symbol, newest first.
func (r *Repository) FindSecurityTransactions(ctx context.Context, accountID, symbol string, limit int) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE account_id = ? AND symbol = ?
		ORDER BY transaction_date DESC LIMIT ?`
	return r.queryTransactions(ctx, query, accountID, symbol, limit)
}

// Save upserts a transaction by id. Only status, settlement date, metadata
// and updated_at may change on an existing row.
func (r *Repository) Save(ctx context.Context, txn *domain.Transaction) error {
	return r.save(ctx, r.db, txn)
}

// SaveMany inserts a batch of transactions in one database transaction.
func (r *Repository) SaveMany(ctx context.Context, txns []*domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, txn := range txns {
			if err := r.save(ctx, tx, txn); err != nil {
				return err
			}
		}
		return nil
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) save(ctx context.Context, db execer, txn *domain.Transaction) error {
	metadata, err := marshalMetadata(txn.ProviderMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (
			id, account_id, provider_transaction_id, transaction_type, subtype, status,
			amount, currency, description, asset_type, symbol, security_name,
			quantity, unit_price, commission, transaction_date, settlement_date,
			provider_metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			settlement_date = excluded.settlement_date,
			provider_metadata = excluded.provider_metadata,
			updated_at = excluded.updated_at
	`

	var assetType sql.NullString
	if txn.AssetType != nil {
		assetType = sql.NullString{String: string(*txn.AssetType), Valid: true}
	}

	_, err = db.ExecContext(ctx, query,
		txn.ID,
		txn.AccountID,
		txn.ProviderTransactionID,
		string(txn.Type),
		string(txn.Subtype),
		string(txn.Status),
		txn.Amount.Amount.String(),
		txn.Amount.Currency,
		txn.Description,
		assetType,
		nullString(txn.Symbol),
		nullString(txn.SecurityName),
		nullDecimalPtr(txn.Quantity),
		nullMoney(txn.UnitPrice),
		nullMoney(txn.Commission),
		txn.TransactionDate.Unix(),
		nullUnix(txn.SettlementDate),
		metadata,
		txn.CreatedAt.Unix(),
		txn.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// Delete removes a transaction row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		txn            domain.Transaction
		txnType        string
		subtype        string
		status         string
		amount         string
		currency       string
		assetType      sql.NullString
		symbol         sql.NullString
		securityName   sql.NullString
		quantity       sql.NullString
		unitPrice      sql.NullString
		commission     sql.NullString
		txnDate        int64
		settlementDate sql.NullInt64
		metadata       sql.NullString
		createdAt      int64
		updatedAt      int64
	)

	err := row.Scan(
		&txn.ID, &txn.AccountID, &txn.ProviderTransactionID, &txnType, &subtype, &status,
		&amount, &currency, &txn.Description, &assetType, &symbol, &securityName,
		&quantity, &unitPrice, &commission, &txnDate, &settlementDate,
		&metadata, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Type = domain.TransactionType(txnType)
	txn.Subtype = domain.TransactionSubtype(subtype)
	txn.Status = domain.TransactionStatus(status)

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q for transaction %s: %w", amount, txn.ID, err)
	}
	txn.Amount = domain.Money{Amount: d, Currency: currency}

	if assetType.Valid {
		at := domain.AssetType(assetType.String)
		txn.AssetType = &at
	}
	txn.Symbol = stringPtr(symbol)
	txn.SecurityName = stringPtr(securityName)

	if quantity.Valid {
		q, err := decimal.NewFromString(quantity.String)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity for transaction %s: %w", txn.ID, err)
		}
		txn.Quantity = &q
	}
	if unitPrice.Valid {
		p, err := decimal.NewFromString(unitPrice.String)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price for transaction %s: %w", txn.ID, err)
		}
		m := domain.Money{Amount: p, Currency: currency}
		txn.UnitPrice = &m
	}
	if commission.Valid {
		c, err := decimal.NewFromString(commission.String)
		if err != nil {
			return nil, fmt.Errorf("invalid commission for transaction %s: %w", txn.ID, err)
		}
		m := domain.Money{Amount: c, Currency: currency}
		txn.Commission = &m
	}

	txn.TransactionDate = time.Unix(txnDate, 0).UTC()
	txn.SettlementDate = unixPtr(settlementDate)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &txn.ProviderMetadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for transaction %s: %w", txn.ID, err)
		}
	}
	txn.CreatedAt = time.Unix(createdAt, 0).UTC()
	txn.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &txn, nil
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

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullDecimalPtr(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
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
