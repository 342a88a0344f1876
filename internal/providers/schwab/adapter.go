// Package schwab implements the provider adapter for the Charles Schwab
// trader API. Authentication is an OAuth2 bearer token delivered in the
// credential bundle; token negotiation happens outside this adapter.
package schwab

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

// Adapter fetches accounts, transactions and holdings from Schwab.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a Schwab adapter.
func New(baseURL string, log zerolog.Logger) *Adapter {
	return &Adapter{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.With().Str("provider", "schwab").Logger(),
	}
}

type securitiesAccount struct {
	AccountNumber string `json:"accountNumber"`
	Type          string `json:"type"`
	Nickname      string `json:"nickname"`
	IsClosed      bool   `json:"isClosed"`
	CurrentBalances struct {
		LiquidationValue decimal.Decimal  `json:"liquidationValue"`
		CashAvailable    *decimal.Decimal `json:"cashAvailableForTrading"`
	} `json:"currentBalances"`
	Positions []position `json:"positions"`
}

type accountEnvelope struct {
	SecuritiesAccount securitiesAccount `json:"securitiesAccount"`
}

type position struct {
	Instrument struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		AssetType   string `json:"assetType"`
		CUSIP       string `json:"cusip"`
	} `json:"instrument"`
	LongQuantity  decimal.Decimal  `json:"longQuantity"`
	AveragePrice  *decimal.Decimal `json:"averagePrice"`
	MarketValue   decimal.Decimal  `json:"marketValue"`
	CostBasis     decimal.Decimal  `json:"costBasis"`
	CurrentDayPrice *decimal.Decimal `json:"currentDayPrice"`
}

type transactionEnvelope struct {
	ActivityID   int64           `json:"activityId"`
	Type         string          `json:"type"`
	SubType      string          `json:"subType"`
	Status       string          `json:"status"`
	NetAmount    decimal.Decimal `json:"netAmount"`
	Description  string          `json:"description"`
	TradeDate    time.Time       `json:"tradeDate"`
	SettlementDate *time.Time    `json:"settlementDate"`
	TransferItems []struct {
		Instrument struct {
			Symbol      string `json:"symbol"`
			Description string `json:"description"`
			AssetType   string `json:"assetType"`
		} `json:"instrument"`
		Amount   *decimal.Decimal `json:"amount"`
		Price    *decimal.Decimal `json:"price"`
		FeeType  string           `json:"feeType"`
	} `json:"transferItems"`
}

// FetchAccounts retrieves all accounts linked to the bearer token.
func (a *Adapter) FetchAccounts(ctx context.Context, creds crypto.CredentialBundle) ([]providers.AccountData, error) {
	var payload []accountEnvelope
	if err := a.get(ctx, creds, "/trader/v1/accounts", nil, &payload); err != nil {
		return nil, err
	}

	accounts := make([]providers.AccountData, 0, len(payload))
	for _, env := range payload {
		acct := env.SecuritiesAccount
		accounts = append(accounts, providers.AccountData{
			ProviderAccountID:   acct.AccountNumber,
			AccountNumberMasked: maskAccountNumber(acct.AccountNumber),
			Name:                accountName(acct),
			AccountType:         acct.Type,
			Balance:             acct.CurrentBalances.LiquidationValue,
			Currency:            "USD",
			AvailableBalance:    acct.CurrentBalances.CashAvailable,
			IsActive:            !acct.IsClosed,
		})
	}

	a.log.Debug().Int("count", len(accounts)).Msg("Fetched accounts")
	return accounts, nil
}

// FetchTransactions retrieves transactions for one account within the window.
func (a *Adapter) FetchTransactions(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string, startDate, endDate *time.Time) ([]providers.TransactionData, error) {
	params := url.Values{}
	if startDate != nil {
		params.Set("startDate", startDate.Format(time.RFC3339))
	}
	if endDate != nil {
		params.Set("endDate", endDate.Format(time.RFC3339))
	}

	var payload []transactionEnvelope
	path := fmt.Sprintf("/trader/v1/accounts/%s/transactions", url.PathEscape(providerAccountID))
	if err := a.get(ctx, creds, path, params, &payload); err != nil {
		return nil, err
	}

	txns := make([]providers.TransactionData, 0, len(payload))
	for _, env := range payload {
		txn := providers.TransactionData{
			ProviderTransactionID: fmt.Sprintf("%d", env.ActivityID),
			TransactionType:       env.Type,
			Subtype:               env.SubType,
			Status:                env.Status,
			Amount:                env.NetAmount,
			Currency:              "USD",
			Description:           env.Description,
			TransactionDate:       env.TradeDate,
			SettlementDate:        env.SettlementDate,
		}
		for _, item := range env.TransferItems {
			if item.Instrument.Symbol == "" {
				continue
			}
			txn.Symbol = item.Instrument.Symbol
			txn.SecurityName = item.Instrument.Description
			txn.AssetType = item.Instrument.AssetType
			txn.Quantity = item.Amount
			txn.UnitPrice = item.Price
			break
		}
		txns = append(txns, txn)
	}

	a.log.Debug().Int("count", len(txns)).Str("account", providerAccountID).Msg("Fetched transactions")
	return txns, nil
}

// FetchHoldings retrieves current positions for one account.
func (a *Adapter) FetchHoldings(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string) ([]providers.HoldingData, error) {
	params := url.Values{}
	params.Set("fields", "positions")

	var payload accountEnvelope
	path := fmt.Sprintf("/trader/v1/accounts/%s", url.PathEscape(providerAccountID))
	if err := a.get(ctx, creds, path, params, &payload); err != nil {
		return nil, err
	}

	positions := payload.SecuritiesAccount.Positions
	holdings := make([]providers.HoldingData, 0, len(positions))
	for _, p := range positions {
		id := p.Instrument.CUSIP
		if id == "" {
			id = p.Instrument.Symbol
		}
		holdings = append(holdings, providers.HoldingData{
			ProviderHoldingID: id,
			Symbol:            p.Instrument.Symbol,
			SecurityName:      p.Instrument.Description,
			AssetType:         p.Instrument.AssetType,
			Quantity:          p.LongQuantity,
			CostBasis:         p.CostBasis,
			MarketValue:       p.MarketValue,
			Currency:          "USD",
			AveragePrice:      p.AveragePrice,
			CurrentPrice:      p.CurrentDayPrice,
		})
	}

	a.log.Debug().Int("count", len(holdings)).Str("account", providerAccountID).Msg("Fetched holdings")
	return holdings, nil
}

func (a *Adapter) get(ctx context.Context, creds crypto.CredentialBundle, path string, params url.Values, out interface{}) error {
	token := creds.String("access_token")
	if token == "" {
		return domain.E(domain.CodeCredentialsInvalid, "access_token is required")
	}

	endpoint := a.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Wrap(domain.CodeProviderError, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Wrap(domain.CodeProviderError, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Ef(domain.CodeCredentialsInvalid, "provider rejected token (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.Ef(domain.CodeProviderError, "unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.CodeProviderError, "failed to decode response", err)
	}
	return nil
}

func maskAccountNumber(number string) string {
	if len(number) <= 4 {
		return "****"
	}
	return "****" + number[len(number)-4:]
}

func accountName(acct securitiesAccount) string {
	if acct.Nickname != "" {
		return acct.Nickname
	}
	return "Schwab " + acct.Type
}
