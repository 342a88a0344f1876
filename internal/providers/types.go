// Package providers defines the provider adapter contract and the registry
// that multiplexes concrete adapters behind it.
package providers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/crypto"
)

// AccountData is the raw account record a provider returns. Strings are the
// provider's vocabulary; normalization happens in the sync handlers.
type AccountData struct {
	ProviderAccountID   string
	AccountNumberMasked string
	Name                string
	AccountType         string
	Balance             decimal.Decimal
	Currency            string
	AvailableBalance    *decimal.Decimal
	IsActive            bool
	RawData             map[string]interface{}
}

// TransactionData is the raw transaction record a provider returns.
type TransactionData struct {
	ProviderTransactionID string
	TransactionType       string
	Subtype               string
	Status                string
	Amount                decimal.Decimal
	Currency              string
	Description           string
	AssetType             string
	Symbol                string
	SecurityName          string
	Quantity              *decimal.Decimal
	UnitPrice             *decimal.Decimal
	Commission            *decimal.Decimal
	TransactionDate       time.Time
	SettlementDate        *time.Time
	RawData               map[string]interface{}
}

// HoldingData is the raw position record a provider returns.
type HoldingData struct {
	ProviderHoldingID string
	Symbol            string
	SecurityName      string
	AssetType         string
	Quantity          decimal.Decimal
	CostBasis         decimal.Decimal
	MarketValue       decimal.Decimal
	Currency          string
	AveragePrice      *decimal.Decimal
	CurrentPrice      *decimal.Decimal
	RawData           map[string]interface{}
}

// Adapter is the uniform contract every provider integration satisfies. The
// credential bundle is already decrypted; adapters never see ciphertext.
// Failures are PROVIDER_ERROR-coded; adapters honor context cancellation and
// carry their own HTTP timeouts.
type Adapter interface {
	FetchAccounts(ctx context.Context, creds crypto.CredentialBundle) ([]AccountData, error)
	FetchTransactions(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string, startDate, endDate *time.Time) ([]TransactionData, error)
	FetchHoldings(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string) ([]HoldingData, error)
}
