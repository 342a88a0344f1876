package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
)

type stubAdapter struct{}

func (s *stubAdapter) FetchAccounts(ctx context.Context, creds crypto.CredentialBundle) ([]AccountData, error) {
	return nil, nil
}

func (s *stubAdapter) FetchTransactions(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string, startDate, endDate *time.Time) ([]TransactionData, error) {
	return nil, nil
}

func (s *stubAdapter) FetchHoldings(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string) ([]HoldingData, error) {
	return nil, nil
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	adapter := &stubAdapter{}
	reg.Register("schwab", adapter)

	got, err := reg.Get("schwab")
	require.NoError(t, err)
	assert.Same(t, adapter, got)
}

func TestRegistryUnknownSlug(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("robinhood")
	assert.Equal(t, domain.CodeProviderNotFound, domain.CodeOf(err))
	assert.False(t, reg.Supports("robinhood"))
}

func TestRegistryListSupported(t *testing.T) {
	reg := NewRegistry()
	reg.Register("tradernet", &stubAdapter{})
	reg.Register("schwab", &stubAdapter{})
	reg.Register("csv_import", &stubAdapter{})

	assert.Equal(t, []string{"csv_import", "schwab", "tradernet"}, reg.ListSupported())
}
