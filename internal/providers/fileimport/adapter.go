// Package fileimport implements a provider adapter whose data source is an
// uploaded statement file (CSV or OFX/QFX) instead of a remote API. The
// credential bundle carries the file itself; nothing is fetched over the
// network and file contents are never persisted.
package fileimport

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/providers"
)

// parsed is the normalized output of a file parser.
type parsed struct {
	accounts     []providers.AccountData
	transactions map[string][]providers.TransactionData // keyed by provider account id
}

// Adapter parses statement files into provider data records.
type Adapter struct {
	log zerolog.Logger
}

// New creates a file-import adapter.
func New(log zerolog.Logger) *Adapter {
	return &Adapter{log: log.With().Str("provider", "file_import").Logger()}
}

func (a *Adapter) parse(creds crypto.CredentialBundle) (*parsed, error) {
	content := creds.Bytes("file_content")
	if len(content) == 0 {
		return nil, domain.E(domain.CodeInvalidFile, "file content is empty")
	}

	format := strings.ToLower(creds.String("file_format"))
	switch format {
	case "csv":
		return parseCSV(content)
	case "ofx", "qfx":
		return parseOFX(content)
	default:
		return nil, domain.Ef(domain.CodeInvalidFile, "unsupported file format %q", format)
	}
}

// FetchAccounts parses the file and returns the accounts it describes.
func (a *Adapter) FetchAccounts(ctx context.Context, creds crypto.CredentialBundle) ([]providers.AccountData, error) {
	p, err := a.parse(creds)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Int("count", len(p.accounts)).Str("file", creds.String("file_name")).Msg("Parsed accounts from file")
	return p.accounts, nil
}

// FetchTransactions returns the file's transactions for one account. The
// date window filters on transaction date.
func (a *Adapter) FetchTransactions(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string, startDate, endDate *time.Time) ([]providers.TransactionData, error) {
	p, err := a.parse(creds)
	if err != nil {
		return nil, err
	}

	all := p.transactions[providerAccountID]
	out := make([]providers.TransactionData, 0, len(all))
	for _, txn := range all {
		if startDate != nil && txn.TransactionDate.Before(*startDate) {
			continue
		}
		if endDate != nil && txn.TransactionDate.After(*endDate) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

// FetchHoldings returns nothing: statement files carry no position data.
func (a *Adapter) FetchHoldings(ctx context.Context, creds crypto.CredentialBundle, providerAccountID string) ([]providers.HoldingData, error) {
	return nil, nil
}
