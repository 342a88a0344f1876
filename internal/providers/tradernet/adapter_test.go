package tradernet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
)

func validCreds() crypto.CredentialBundle {
	return crypto.CredentialBundle{"api_key": "key", "api_secret": "secret"}
}

func TestFetchAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Secret"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"account_id":"TN-1","number_masked":"****0001","name":"Main","account_type":"BROKERAGE","balance":"1250.75","currency":"EUR","active":true}]`))
	}))
	defer srv.Close()

	a := New(srv.URL, zerolog.Nop())
	accounts, err := a.FetchAccounts(context.Background(), validCreds())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "TN-1", accounts[0].ProviderAccountID)
	assert.Equal(t, "1250.75", accounts[0].Balance.String())
	assert.Equal(t, "EUR", accounts[0].Currency)
	assert.True(t, accounts[0].IsActive)
}

func TestFetchTransactionsDateWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/TN-1/transactions", r.URL.Path)
		assert.Equal(t, "2026-01-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2026-01-31", r.URL.Query().Get("end_date"))
		w.Write([]byte(`[{"transaction_id":"T-1","type":"BUY","status":"EXECUTED","amount":"-500","currency":"EUR","description":"BUY SAP","symbol":"SAP","trade_date":"2026-01-15T00:00:00Z"}]`))
	}))
	defer srv.Close()

	a := New(srv.URL, zerolog.Nop())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	txns, err := a.FetchTransactions(context.Background(), validCreds(), "TN-1", &start, &end)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "T-1", txns[0].ProviderTransactionID)
	assert.Equal(t, "BUY", txns[0].TransactionType)
}

func TestFetchHoldings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/TN-1/positions", r.URL.Path)
		w.Write([]byte(`[{"holding_id":"H-1","symbol":"SAP","security_name":"SAP SE","asset_type":"EQUITY","quantity":"10","cost_basis":"1000","market_value":"1100","currency":"EUR"}]`))
	}))
	defer srv.Close()

	a := New(srv.URL, zerolog.Nop())
	holdings, err := a.FetchHoldings(context.Background(), validCreds(), "TN-1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "H-1", holdings[0].ProviderHoldingID)
	assert.Equal(t, "1100", holdings[0].MarketValue.String())
}

func TestMissingCredentials(t *testing.T) {
	a := New("http://localhost:0", zerolog.Nop())
	_, err := a.FetchAccounts(context.Background(), crypto.CredentialBundle{})
	assert.Equal(t, domain.CodeCredentialsInvalid, domain.CodeOf(err))
}

func TestUnauthorizedMapsToCredentialsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New(srv.URL, zerolog.Nop())
	_, err := a.FetchAccounts(context.Background(), validCreds())
	assert.Equal(t, domain.CodeCredentialsInvalid, domain.CodeOf(err))
}

func TestServerErrorMapsToProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(srv.URL, zerolog.Nop())
	_, err := a.FetchAccounts(context.Background(), validCreds())
	assert.Equal(t, domain.CodeProviderError, domain.CodeOf(err))
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := New(srv.URL, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.FetchAccounts(ctx, validCreds())
	assert.Equal(t, domain.CodeProviderError, domain.CodeOf(err))
}
