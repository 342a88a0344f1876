package holdings

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

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

// HoldingDTO is the read-side projection of a holding, with the gain/loss
// figures computed on the way out.
type HoldingDTO struct {
	ID                 string                 `json:"id"`
	AccountID          string                 `json:"account_id"`
	Symbol             string                 `json:"symbol"`
	SecurityName       string                 `json:"security_name"`
	AssetType          string                 `json:"asset_type"`
	Quantity           string                 `json:"quantity"`
	CostBasis          MoneyDTO               `json:"cost_basis"`
	MarketValue        MoneyDTO               `json:"market_value"`
	Currency           string                 `json:"currency"`
	AveragePrice       *MoneyDTO              `json:"average_price,omitempty"`
	CurrentPrice       *MoneyDTO              `json:"current_price,omitempty"`
	UnrealizedGainLoss MoneyDTO               `json:"unrealized_gain_loss"`
	UnrealizedPercent  *string                `json:"unrealized_gain_loss_percent,omitempty"`
	IsActive           bool                   `json:"is_active"`
	LastSyncedAt       *time.Time             `json:"last_synced_at,omitempty"`
	ProviderMetadata   map[string]interface{} `json:"provider_metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func toHoldingDTO(h *domain.Holding) *HoldingDTO {
	dto := &HoldingDTO{
		ID:                 h.ID,
		AccountID:          h.AccountID,
		Symbol:             h.Symbol,
		SecurityName:       h.SecurityName,
		AssetType:          string(h.AssetType),
		Quantity:           h.Quantity.String(),
		CostBasis:          moneyDTO(h.CostBasis),
		MarketValue:        moneyDTO(h.MarketValue),
		Currency:           h.Currency,
		AveragePrice:       moneyDTOPtr(h.AveragePrice),
		CurrentPrice:       moneyDTOPtr(h.CurrentPrice),
		UnrealizedGainLoss: moneyDTO(h.UnrealizedGainLoss()),
		IsActive:           h.IsActive,
		LastSyncedAt:       h.LastSyncedAt,
		ProviderMetadata:   h.ProviderMetadata,
		CreatedAt:          h.CreatedAt,
		UpdatedAt:          h.UpdatedAt,
	}
	if pct := h.UnrealizedGainLossPercent(); pct != nil {
		s := pct.StringFixed(2)
		dto.UnrealizedPercent = &s
	}
	return dto
}

// CurrencyAggregate sums a set of holdings sharing one currency.
type CurrencyAggregate struct {
	MarketValue        string `json:"market_value"`
	CostBasis          string `json:"cost_basis"`
	UnrealizedGainLoss string `json:"unrealized_gain_loss"`
}

// HoldingsResult is a filtered list of holdings plus per-currency totals.
type HoldingsResult struct {
	Holdings        []*HoldingDTO                `json:"holdings"`
	TotalByCurrency map[string]CurrencyAggregate `json:"total_by_currency"`
}

// HoldingFilter narrows a holdings listing. A nil AssetType or empty Symbol
// matches everything.
type HoldingFilter struct {
	AssetType *string
	Symbol    string
}

// ownershipVerifier is the slice of the ownership chain the queries need.
type ownershipVerifier interface {
	VerifyAccountOwnershipOnly(ctx context.Context, accountID, userID string) error
	VerifyHoldingOwnership(ctx context.Context, holdingID, userID string) (*domain.Holding, error)
}

// Queries serves holding read models.
type Queries struct {
	repo      *Repository
	ownership ownershipVerifier
	log       zerolog.Logger
}

// NewQueries creates the holding query handlers.
func NewQueries(repo *Repository, ownership ownershipVerifier, log zerolog.Logger) *Queries {
	return &Queries{
		repo:      repo,
		ownership: ownership,
		log:       log.With().Str("module", "holdings").Logger(),
	}
}

// GetHolding returns one holding owned by the user.
func (q *Queries) GetHolding(ctx context.Context, userID, holdingID string) (*HoldingDTO, error) {
	h, err := q.ownership.VerifyHoldingOwnership(ctx, holdingID, userID)
	if err != nil {
		return nil, err
	}
	return toHoldingDTO(h), nil
}

// ListHoldingsByAccount returns an account's holdings with per-currency
// totals, after verifying the account belongs to the user.
func (q *Queries) ListHoldingsByAccount(ctx context.Context, userID, accountID string, activeOnly bool, filter HoldingFilter) (*HoldingsResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if err := q.ownership.VerifyAccountOwnershipOnly(ctx, accountID, userID); err != nil {
		return nil, err
	}
	hs, err := q.repo.ListByAccount(ctx, accountID, activeOnly)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list holdings", err)
	}
	return buildResult(hs, filter), nil
}

// ListHoldingsByUser returns all holdings across a user's accounts with
// per-currency totals.
func (q *Queries) ListHoldingsByUser(ctx context.Context, userID string, activeOnly bool, filter HoldingFilter) (*HoldingsResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	hs, err := q.repo.ListByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list holdings", err)
	}
	return buildResult(hs, filter), nil
}

func validateFilter(filter HoldingFilter) error {
	if filter.AssetType != nil && !domain.ValidAssetType(*filter.AssetType) {
		return domain.Ef(domain.CodeInvalidAssetType, "unknown asset type %q", *filter.AssetType)
	}
	return nil
}

func matchesFilter(h *domain.Holding, filter HoldingFilter) bool {
	if filter.AssetType != nil && string(h.AssetType) != *filter.AssetType {
		return false
	}
	if filter.Symbol != "" && !strings.EqualFold(h.Symbol, filter.Symbol) {
		return false
	}
	return true
}

func buildResult(hs []*domain.Holding, filter HoldingFilter) *HoldingsResult {
	result := &HoldingsResult{
		Holdings:        make([]*HoldingDTO, 0, len(hs)),
		TotalByCurrency: make(map[string]CurrencyAggregate),
	}

	type totals struct {
		marketValue decimal.Decimal
		costBasis   decimal.Decimal
	}
	sums := make(map[string]totals)
	for _, h := range hs {
		if !matchesFilter(h, filter) {
			continue
		}
		result.Holdings = append(result.Holdings, toHoldingDTO(h))
		t := sums[h.Currency]
		t.marketValue = t.marketValue.Add(h.MarketValue.Amount)
		t.costBasis = t.costBasis.Add(h.CostBasis.Amount)
		sums[h.Currency] = t
	}
	for currency, t := range sums {
		result.TotalByCurrency[currency] = CurrencyAggregate{
			MarketValue:        t.marketValue.String(),
			CostBasis:          t.costBasis.String(),
			UnrealizedGainLoss: t.marketValue.Sub(t.costBasis).String(),
		}
	}
	return result
}
