// Package tradernet implements the provider adapter for the Tradernet
// brokerage API. Authentication is API key + secret sent per request.
package tradernet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/providers"
)

const defaultTimeout = 30 * time.Second

// Adapter fetches accounts, transactions and holdings from Tradernet.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a Tradernet adapter.
func New(baseURL string, log zerolog.Logger) *Adapter {
	return &Adapter{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With().Str("provider", "tradernet").Logger(),
	}
}

type accountPayload struct {
	AccountID        string          `json:"account_id"`
	NumberMasked     string          `json:"number_masked"`
	Name             string          `json:"name"`
	AccountType      string          `json:"account_type"`
	Balance          decimal.Decimal `json:"balance"`
	Currency         string          `json:"currency"`
	AvailableBalance *decimal.Decimal `json:"available_balance"`
	Active           bool            `json:"active"`
}

type transactionPayload struct {
	TransactionID  string           `json:"transaction_id"`
	Type           string           `json:"type"`
	Subtype        string           `json:"subtype"`
	Status         string           `json:"status"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	Description    string           `json:"description"`
	AssetType      string           `json:"asset_type"`
	Symbol         string           `json:"symbol"`
	SecurityName   string           `json:"security_name"`
	Quantity       *decimal.Decimal `json:"quantity"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	Commission     *decimal.Decimal `json:"commission"`
	TradeDate      time.Time        `json:"trade_date"`
	SettlementDate *time.Time       `json:"settlement_date"`
}

type holdingPayload struct {
	HoldingID    string           `json:"holding_id"`
	Symbol       string           `json:"symbol"`
	SecurityName string           `json:"security_name"`
	AssetType    string           `json:"asset_type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	CostBasis    decimal.Decimal  `json:"cost_basis"`
	MarketValue  decimal.Decimal  `json:"market_value"`
	Currency     string           `json:"currency"`
	AvgPrice     *decimal.Decimal `json:"avg_price"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
}

// FetchAccounts retrieves all accounts visible to the API key.
func (a *Adapter) FetchAccounts(ctx context.Context, creds crypto.CredentialBundle) ([]providers.AccountData, error) {
	var payload []accountPayload
	if err := a.get(ctx, creds, "/v1/accounts", nil, &payload); err != nil {
		return nil, err
	}

	accounts := make([]providers.AccountData, 0, len(payload))
	for _, p := range payload {
		accounts = append(accounts, providers.AccountData{
			ProviderAccountID:   p.AccountID,
			AccountNumberMasked: p.NumberMasked,
			Name:                p.Name,
			AccountType:         p.AccountType,
			Balance:             p.Balance,
			Currency:            p.Currency,
			AvailableBalance:    p.AvailableBalance,
			IsActive:            p.Active,
		})
	}

	a.log.Debug().Int("count", len(accounts)).Msg("Fetched accounts")
	return accounts, nil
}

// FetchTransactions retrieves transactions for one account, optionally
// bounded by a date window.
func (a *Adapter) FetchTransactions(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string, startDate, endDate *time.Time) ([]providers.TransactionData, error) {
	params := url.Values{}
	if startDate != nil {
		params.Set("start_date", startDate.Format("2006-01-02"))
	}
	if endDate != nil {
		params.Set("end_date", endDate.Format("2006-01-02"))
	}

	var payload []transactionPayload
	path := fmt.Sprintf("/v1/accounts/%s/transactions", url.PathEscape(providerAccountID))
	if err := a.get(ctx, creds, path, params, &payload); err != nil {
		return nil, err
	}

	txns := make([]providers.TransactionData, 0, len(payload))
	for _, p := range payload {
		txns = append(txns, providers.TransactionData{
			ProviderTransactionID: p.TransactionID,
			TransactionType:       p.Type,
			Subtype:               p.Subtype,
			Status:                p.Status,
			Amount:                p.Amount,
			Currency:              p.Currency,
			Description:           p.Description,
			AssetType:             p.AssetType,
			Symbol:                p.Symbol,
			SecurityName:          p.SecurityName,
			Quantity:              p.Quantity,
			UnitPrice:             p.UnitPrice,
			Commission:            p.Commission,
			TransactionDate:       p.TradeDate,
			SettlementDate:        p.SettlementDate,
		})
	}

	a.log.Debug().Int("count", len(txns)).Str("account", providerAccountID).Msg("Fetched transactions")
	return txns, nil
}

// FetchHoldings retrieves current positions for one account.
func (a *Adapter) FetchHoldings(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string) ([]providers.HoldingData, error) {
	var payload []holdingPayload
	path := fmt.Sprintf("/v1/accounts/%s/positions", url.PathEscape(providerAccountID))
	if err := a.get(ctx, creds, path, nil, &payload); err != nil {
		return nil, err
	}

	holdings := make([]providers.HoldingData, 0, len(payload))
	for _, p := range payload {
		holdings = append(holdings, providers.HoldingData{
			ProviderHoldingID: p.HoldingID,
			Symbol:            p.Symbol,
			SecurityName:      p.SecurityName,
			AssetType:         p.AssetType,
			Quantity:          p.Quantity,
			CostBasis:         p.CostBasis,
			MarketValue:       p.MarketValue,
			Currency:          p.Currency,
			AveragePrice:      p.AvgPrice,
			CurrentPrice:      p.CurrentPrice,
		})
	}

	a.log.Debug().Int("count", len(holdings)).Str("account", providerAccountID).Msg("Fetched holdings")
	return holdings, nil
}

func (a *Adapter) get(ctx context.Context, creds crypto.CredentialBundle, path string, params url.Values, out interface{}) error {
	apiKey := creds.String("api_key")
	apiSecret := creds.String("api_secret")
	if apiKey == "" || apiSecret == "" {
		return domain.E(domain.CodeCredentialsInvalid, "api_key and api_secret are required")
	}

	endpoint := a.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Wrap(domain.CodeProviderError, "failed to build request", err)
	}
	req.Header.Set("X-Api-Key", apiKey)
	req.Header.Set("X-Api-Secret", apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Wrap(domain.CodeProviderError, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Ef(domain.CodeCredentialsInvalid, "provider rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.Ef(domain.CodeProviderError, "unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.CodeProviderError, "failed to decode response", err)
	}
	return nil
}
