package accounts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// MoneyDTO projects a Money value into its wire shape: an exact decimal
// string next to its currency code.
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

// AccountDTO is the read-side projection of an account.
type AccountDTO struct {
	ID                string                 `json:"id"`
	ConnectionID      string                 `json:"connection_id"`
	ProviderAccountID string                 `json:"provider_account_id"`
	NumberMasked      string                 `json:"account_number_masked"`
	Name              string                 `json:"name"`
	AccountType       string                 `json:"account_type"`
	Balance           MoneyDTO               `json:"balance"`
	AvailableBalance  *MoneyDTO              `json:"available_balance,omitempty"`
	Currency          string                 `json:"currency"`
	IsActive          bool                   `json:"is_active"`
	LastSyncedAt      *time.Time             `json:"last_synced_at,omitempty"`
	ProviderMetadata  map[string]interface{} `json:"provider_metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func toAccountDTO(a *domain.Account) *AccountDTO {
	return &AccountDTO{
		ID:                a.ID,
		ConnectionID:      a.ConnectionID,
		ProviderAccountID: a.ProviderAccountID,
		NumberMasked:      a.NumberMasked,
		Name:              a.Name,
		AccountType:       string(a.Type),
		Balance:           moneyDTO(a.Balance),
		AvailableBalance:  moneyDTOPtr(a.AvailableBalance),
		Currency:          a.Currency,
		IsActive:          a.IsActive,
		LastSyncedAt:      a.LastSyncedAt,
		ProviderMetadata:  a.ProviderMetadata,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// ownershipVerifier is the slice of the ownership chain the queries need.
type ownershipVerifier interface {
	VerifyAccountOwnership(ctx context.Context, accountID, userID string) (*domain.Account, *domain.ProviderConnection, error)
}

// Queries serves account read models.
type Queries struct {
	repo      *Repository
	ownership ownershipVerifier
	log       zerolog.Logger
}

// NewQueries creates the account query handlers.
func NewQueries(repo *Repository, ownership ownershipVerifier, log zerolog.Logger) *Queries {
	return &Queries{
		repo:      repo,
		ownership: ownership,
		log:       log.With().Str("module", "accounts").Logger(),
	}
}

// GetAccount returns one account owned by the user.
func (q *Queries) GetAccount(ctx context.Context, userID, accountID string) (*AccountDTO, error) {
	acct, _, err := q.ownership.VerifyAccountOwnership(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	return toAccountDTO(acct), nil
}

// ListAccounts returns a user's accounts, optionally restricted to active
// ones or to one account type.
func (q *Queries) ListAccounts(ctx context.Context, userID string, activeOnly bool, accountType *domain.AccountType) ([]*AccountDTO, error) {
	accts, err := q.repo.FindByUserID(ctx, userID, activeOnly, accountType)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list accounts", err)
	}

	dtos := make([]*AccountDTO, 0, len(accts))
	for _, acct := range accts {
		dtos = append(dtos, toAccountDTO(acct))
	}
	return dtos, nil
}
