package transactions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// MoneyDTO projects a Money value into its wire shape.
type MoneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func moneyDTO(m domain.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount.String(), Currency: m.Currency}
}

func moneyDTOPtr(m *domain.Money) *MoneyDTO {
	if m == nil {
		return nil
	}
	dto := moneyDTO(*m)
	return &dto
}

// TransactionDTO is the read-side projection of a transaction.
type TransactionDTO struct {
	ID                    string                 `json:"id"`
	AccountID             string                 `json:"account_id"`
	ProviderTransactionID string                 `json:"provider_transaction_id"`
	Type                  string                 `json:"transaction_type"`
	Subtype               string                 `json:"subtype"`
	Status                string                 `json:"status"`
	Amount                MoneyDTO               `json:"amount"`
	Description           string                 `json:"description"`
	AssetType             *string                `json:"asset_type,omitempty"`
	Symbol                *string                `json:"symbol,omitempty"`
	SecurityName          *string                `json:"security_name,omitempty"`
	Quantity              *string                `json:"quantity,omitempty"`
	UnitPrice             *MoneyDTO              `json:"unit_price,omitempty"`
	Commission            *MoneyDTO              `json:"commission,omitempty"`
	TransactionDate       time.Time              `json:"transaction_date"`
	SettlementDate        *time.Time             `json:"settlement_date,omitempty"`
	ProviderMetadata      map[string]interface{} `json:"provider_metadata,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
}

func toTransactionDTO(txn *domain.Transaction) *TransactionDTO {
	dto := &TransactionDTO{
		ID:                    txn.ID,
		AccountID:             txn.AccountID,
		ProviderTransactionID: txn.ProviderTransactionID,
		Type:                  string(txn.Type),
		Subtype:               string(txn.Subtype),
		Status:                string(txn.Status),
		Amount:                moneyDTO(txn.Amount),
		Description:           txn.Description,
		Symbol:                txn.Symbol,
		SecurityName:          txn.SecurityName,
		UnitPrice:             moneyDTOPtr(txn.UnitPrice),
		Commission:            moneyDTOPtr(txn.Commission),
		TransactionDate:       txn.TransactionDate,
		SettlementDate:        txn.SettlementDate,
		ProviderMetadata:      txn.ProviderMetadata,
		CreatedAt:             txn.CreatedAt,
	}
	if txn.AssetType != nil {
		at := string(*txn.AssetType)
		dto.AssetType = &at
	}
	if txn.Quantity != nil {
		q := txn.Quantity.String()
		dto.Quantity = &q
	}
	return dto
}

// TransactionPage is one page of a transaction listing. HasMore is a hint: it
// is true exactly when the page is full, so the last page of a count that is
// a multiple of the limit reports one extra empty page.
type TransactionPage struct {
	Transactions []*TransactionDTO `json:"transactions"`
	Limit        int               `json:"limit"`
	Offset       int               `json:"offset"`
	HasMore      bool              `json:"has_more"`
}

const defaultPageLimit = 50

// ownershipVerifier is the slice of the ownership chain the queries need.
type ownershipVerifier interface {
	VerifyAccountOwnershipOnly(ctx context.Context, accountID, userID string) error
	VerifyTransactionOwnership(ctx context.Context, transactionID, userID string) (*domain.Transaction, error)
}

// Queries serves transaction read models.
type Queries struct {
	repo      *Repository
	ownership ownershipVerifier
	log       zerolog.Logger
}

// NewQueries creates the transaction query handlers.
func NewQueries(repo *Repository, ownership ownershipVerifier, log zerolog.Logger) *Queries {
	return &Queries{
		repo:      repo,
		ownership: ownership,
		log:       log.With().Str("module", "transactions").Logger(),
	}
}

// GetTransaction returns one transaction owned by the user.
func (q *Queries) GetTransaction(ctx context.Context, userID, transactionID string) (*TransactionDTO, error) {
	txn, err := q.ownership.VerifyTransactionOwnership(ctx, transactionID, userID)
	if err != nil {
		return nil, err
	}
	return toTransactionDTO(txn), nil
}

// ListTransactionsByAccount returns a page of an account's transactions,
// newest first, optionally restricted to one transaction type.
func (q *Queries) ListTransactionsByAccount(ctx context.Context, userID, accountID string, txnType *domain.TransactionType, limit, offset int) (*TransactionPage, error) {
	if err := q.ownership.VerifyAccountOwnershipOnly(ctx, accountID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	var (
		txns []*domain.Transaction
		err  error
	)
	if txnType != nil {
		txns, err = q.repo.FindByAccountAndType(ctx, accountID, *txnType, limit, offset)
	} else {
		txns, err = q.repo.FindByAccountID(ctx, accountID, limit, offset)
	}
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list transactions", err)
	}

	page := &TransactionPage{
		Transactions: make([]*TransactionDTO, 0, len(txns)),
		Limit:        limit,
		Offset:       offset,
		HasMore:      len(txns) == limit,
	}
	for _, txn := range txns {
		page.Transactions = append(page.Transactions, toTransactionDTO(txn))
	}
	return page, nil
}

// ListTransactionsByDateRange returns an account's transactions within
// [start, end], oldest first.
func (q *Queries) ListTransactionsByDateRange(ctx context.Context, userID, accountID string, start, end time.Time) ([]*TransactionDTO, error) {
	if !start.Before(end) {
		return nil, domain.E(domain.CodeInvalidDateRange, "start date must be before end date")
	}
	if err := q.ownership.VerifyAccountOwnershipOnly(ctx, accountID, userID); err != nil {
		return nil, err
	}

	txns, err := q.repo.FindByDateRange(ctx, accountID, start, end)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list transactions", err)
	}
	dtos := make([]*TransactionDTO, 0, len(txns))
	for _, txn := range txns {
		dtos = append(dtos, toTransactionDTO(txn))
	}
	return dtos, nil
}

// ListSecurityTransactions returns an account's transactions for one symbol,
// newest first.
func (q *Queries) ListSecurityTransactions(ctx context.Context, userID, accountID, symbol string, limit int) ([]*TransactionDTO, error) {
	if err := q.ownership.VerifyAccountOwnershipOnly(ctx, accountID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	txns, err := q.repo.FindSecurityTransactions(ctx, accountID, symbol, limit)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list transactions", err)
	}
	dtos := make([]*TransactionDTO, 0, len(txns))
	for _, txn := range txns {
		dtos = append(dtos, toTransactionDTO(txn))
	}
	return dtos, nil
}
