package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetType classifies the security behind a holding or transaction.
type AssetType string

const (
	AssetEquity         AssetType = "EQUITY"
	AssetETF            AssetType = "ETF"
	AssetOption         AssetType = "OPTION"
	AssetMutualFund     AssetType = "MUTUAL_FUND"
	AssetFixedIncome    AssetType = "FIXED_INCOME"
	AssetFutures        AssetType = "FUTURES"
	AssetCryptocurrency AssetType = "CRYPTOCURRENCY"
	AssetCashEquivalent AssetType = "CASH_EQUIVALENT"
	AssetOther          AssetType = "OTHER"
)

// ValidAssetType reports whether s names a known asset type.
func ValidAssetType(s string) bool {
	switch AssetType(s) {
	case AssetEquity, AssetETF, AssetOption, AssetMutualFund, AssetFixedIncome,
		AssetFutures, AssetCryptocurrency, AssetCashEquivalent, AssetOther:
		return true
	}
	return false
}

// Holding is a position in an account, keyed by the provider's holding id.
// Like accounts, holdings are deactivated rather than deleted when they
// disappear from a provider response.
type Holding struct {
	ID                string
	AccountID         string
	ProviderHoldingID string
	Symbol            string
	SecurityName      string
	AssetType         AssetType
	Quantity          decimal.Decimal
	CostBasis         Money
	MarketValue       Money
	Currency          string
	AveragePrice      *Money
	CurrentPrice      *Money
	IsActive          bool
	LastSyncedAt      *time.Time
	ProviderMetadata  map[string]interface{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewHolding creates a holding. Quantity must be non-negative and all Money
// fields must share one currency.
func NewHolding(accountID, providerHoldingID, symbol, securityName string, assetType AssetType, quantity decimal.Decimal, costBasis, marketValue Money, averagePrice, currentPrice *Money, metadata map[string]interface{}, now time.Time) (*Holding, error) {
	if quantity.IsNegative() {
		return nil, Ef(CodeInvalidAssetType, "quantity must be non-negative, got %s", quantity)
	}
	if err := checkHoldingCurrencies(costBasis, marketValue, averagePrice, currentPrice); err != nil {
		return nil, err
	}

	t := now
	return &Holding{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		ProviderHoldingID: providerHoldingID,
		Symbol:            symbol,
		SecurityName:      securityName,
		AssetType:         assetType,
		Quantity:          quantity,
		CostBasis:         costBasis,
		MarketValue:       marketValue,
		Currency:          costBasis.Currency,
		AveragePrice:      averagePrice,
		CurrentPrice:      currentPrice,
		IsActive:          true,
		LastSyncedAt:      &t,
		ProviderMetadata:  metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func checkHoldingCurrencies(costBasis, marketValue Money, averagePrice, currentPrice *Money) error {
	currency := costBasis.Currency
	if marketValue.Currency != currency {
		return Ef(CodeCurrencyMismatch, "market value currency %s != cost basis currency %s", marketValue.Currency, currency)
	}
	if averagePrice != nil && averagePrice.Currency != currency {
		return Ef(CodeCurrencyMismatch, "average price currency %s != holding currency %s", averagePrice.Currency, currency)
	}
	if currentPrice != nil && currentPrice.Currency != currency {
		return Ef(CodeCurrencyMismatch, "current price currency %s != holding currency %s", currentPrice.Currency, currency)
	}
	return nil
}

// UnrealizedGainLoss returns market_value - cost_basis.
func (h *Holding) UnrealizedGainLoss() Money {
	return Money{Amount: h.MarketValue.Amount.Sub(h.CostBasis.Amount), Currency: h.Currency}
}

// UnrealizedGainLossPercent returns the gain/loss as a percentage of cost
// basis, rounded to two decimals. Nil when cost basis is zero.
func (h *Holding) UnrealizedGainLossPercent() *decimal.Decimal {
	if h.CostBasis.Amount.IsZero() {
		return nil
	}
	pct := h.UnrealizedGainLoss().Amount.
		Div(h.CostBasis.Amount).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return &pct
}

// UpdateFromProvider replaces the position data with a fresh provider
// snapshot, preserving the currency invariant.
func (h *Holding) UpdateFromProvider(quantity decimal.Decimal, costBasis, marketValue Money, averagePrice, currentPrice *Money, securityName string, metadata map[string]interface{}, now time.Time) error {
	if quantity.IsNegative() {
		return Ef(CodeInvalidAssetType, "quantity must be non-negative, got %s", quantity)
	}
	if err := checkHoldingCurrencies(costBasis, marketValue, averagePrice, currentPrice); err != nil {
		return err
	}

	h.Quantity = quantity
	h.CostBasis = costBasis
	h.MarketValue = marketValue
	h.Currency = costBasis.Currency
	h.AveragePrice = averagePrice
	h.CurrentPrice = currentPrice
	if securityName != "" {
		h.SecurityName = securityName
	}
	if metadata != nil {
		h.ProviderMetadata = metadata
	}
	h.IsActive = true
	h.UpdatedAt = now
	return nil
}

// Deactivate marks the holding inactive. Used by the sweep that runs after a
// holdings sync when a position no longer appears in the provider response.
func (h *Holding) Deactivate(now time.Time) {
	h.IsActive = false
	h.UpdatedAt = now
}

// MarkSynced stamps the last sync time.
func (h *Holding) MarkSynced(now time.Time) {
	t := now
	h.LastSyncedAt = &t
	h.UpdatedAt = now
}
