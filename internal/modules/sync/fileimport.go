package sync

import (
	"context"
	"time"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
	"github.com/aristath/aggregator/internal/providers"
)

// ImportFromFileCommand carries the input for ImportFromFile. The file
// content only ever lives in memory; it is handed to the adapter through an
// ephemeral credential bundle and never persisted.
type ImportFromFileCommand struct {
	UserID       string
	ProviderSlug string
	FileName     string
	FileFormat   string
	FileContent  []byte
}

// ImportResult summarizes one file import.
type ImportResult struct {
	ConnectionID        string `json:"connection_id"`
	AccountsCreated     int    `json:"accounts_created"`
	AccountsUpdated     int    `json:"accounts_updated"`
	TransactionsCreated int    `json:"transactions_created"`
	TransactionsSkipped int    `json:"transactions_skipped"`
	Errors              int    `json:"errors"`
	TotalRecords        int    `json:"total_records"`
}

// ImportFromFile ingests a statement file through a file-based provider
// adapter. A single connection per (user, slug) is found or created with a
// FILE_IMPORT placeholder credential. Transactions are deduplicated exactly
// like a provider sync, so re-importing the same file creates nothing new.
// Progress events fire every 100 records or every 5 percent, whichever comes
// first; the final record is reported through the Succeeded event only.
func (h *Handler) ImportFromFile(ctx context.Context, cmd ImportFromFileCommand) (*ImportResult, error) {
	h.events.EmitForUser(events.FileImportAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"provider_slug": cmd.ProviderSlug,
		"file_name":     cmd.FileName,
		"file_format":   cmd.FileFormat,
	})
	failCtx := map[string]interface{}{
		"provider_slug": cmd.ProviderSlug,
		"file_name":     cmd.FileName,
	}
	now := h.now().UTC()

	adapter, err := h.registry.Get(cmd.ProviderSlug)
	if err != nil {
		return nil, h.fail(events.FileImportFailed, cmd.UserID, err, failCtx)
	}

	// The file travels to the adapter in memory only.
	bundle := crypto.CredentialBundle{
		"file_content": cmd.FileContent,
		"file_format":  cmd.FileFormat,
		"file_name":    cmd.FileName,
	}

	fetchedAccounts, err := adapter.FetchAccounts(ctx, bundle)
	if err != nil {
		return nil, h.fail(events.FileImportFailed, cmd.UserID, err, failCtx)
	}
	if len(fetchedAccounts) == 0 {
		return nil, h.fail(events.FileImportFailed, cmd.UserID,
			domain.E(domain.CodeNoAccounts, "file contains no accounts"), failCtx)
	}

	conn, err := h.findOrCreateImportConnection(ctx, cmd.UserID, cmd.ProviderSlug, now)
	if err != nil {
		return nil, h.fail(events.FileImportFailed, cmd.UserID, err, failCtx)
	}

	result := &ImportResult{ConnectionID: conn.ID}
	var deltas []balanceDelta
	imported := make([]*domain.Account, 0, len(fetchedAccounts))
	for _, data := range fetchedAccounts {
		delta, outcome, err := h.upsertAccount(ctx, conn.ID, data, now)
		if err != nil {
			h.log.Warn().Err(err).
				Str("provider_account_id", data.ProviderAccountID).
				Msg("account upsert failed, continuing")
			result.Errors++
			continue
		}
		if outcome == outcomeCreated {
			result.AccountsCreated++
		} else {
			result.AccountsUpdated++
		}
		if delta != nil {
			deltas = append(deltas, *delta)
		}
		acct, err := h.accounts.FindByProviderAccountID(ctx, conn.ID, data.ProviderAccountID)
		if err != nil || acct == nil {
			result.Errors++
			continue
		}
		imported = append(imported, acct)
	}

	// Fetch everything first so progress percentages have a stable total.
	batches := make([][]providers.TransactionData, len(imported))
	for i, acct := range imported {
		txns, err := adapter.FetchTransactions(ctx, bundle, acct.ProviderAccountID, nil, nil)
		if err != nil {
			h.log.Warn().Err(err).Str("account_id", acct.ID).Msg("transaction fetch failed, continuing")
			result.Errors++
			continue
		}
		batches[i] = txns
		result.TotalRecords += len(txns)
	}

	progress := newProgressReporter(h.events, cmd, result.TotalRecords)
	processed := 0
	for i, acct := range imported {
		for _, data := range batches[i] {
			outcome, err := h.insertTransaction(ctx, acct.ID, data, now)
			processed++
			if err != nil {
				h.log.Warn().Err(err).
					Str("provider_transaction_id", data.ProviderTransactionID).
					Msg("transaction insert failed, continuing")
				result.Errors++
			} else if outcome == outcomeCreated {
				result.TransactionsCreated++
			} else {
				result.TransactionsSkipped++
			}
			progress.report(processed)
		}
	}

	h.events.EmitForUser(events.FileImportSucceeded, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id":        conn.ID,
		"provider_slug":        cmd.ProviderSlug,
		"file_name":            cmd.FileName,
		"accounts_created":     result.AccountsCreated,
		"accounts_updated":     result.AccountsUpdated,
		"transactions_created": result.TransactionsCreated,
		"transactions_skipped": result.TransactionsSkipped,
		"errors":               result.Errors,
		"total_records":        result.TotalRecords,
	})
	for _, d := range deltas {
		h.events.EmitTyped(events.AccountBalanceUpdated, moduleName, cmd.UserID, &events.AccountBalanceUpdatedData{
			AccountID:       d.accountID,
			PreviousBalance: d.previous,
			NewBalance:      d.next,
			Currency:        d.currency,
		})
	}
	h.log.Info().
		Str("connection_id", conn.ID).
		Str("file_name", cmd.FileName).
		Int("transactions_created", result.TransactionsCreated).
		Int("transactions_skipped", result.TransactionsSkipped).
		Msg("file import complete")
	return result, nil
}

// findOrCreateImportConnection returns the user's connection for a file
// provider slug, creating it with a placeholder FILE_IMPORT credential on
// first import.
func (h *Handler) findOrCreateImportConnection(ctx context.Context, userID, slug string, now time.Time) (*domain.ProviderConnection, error) {
	existing, err := h.connections.FindByUserAndSlug(ctx, userID, slug)
	if err != nil {
		return nil, domain.Wrap(domain.CodeImportFailed, "failed to load connection", err)
	}
	for _, conn := range existing {
		if conn.Status != domain.ConnectionDisconnected {
			return conn, nil
		}
	}

	conn, err := domain.NewProviderConnection(userID, slug, slug, nil, now)
	if err != nil {
		return nil, err
	}
	sealed, err := h.cipher.Encrypt(crypto.CredentialBundle{"source": "file_import"})
	if err != nil {
		return nil, domain.Wrap(domain.CodeImportFailed, "failed to seal placeholder credentials", err)
	}
	creds := domain.NewCredentials(domain.CredentialFileImport, sealed, nil)
	if err := conn.MarkConnected(&creds, now); err != nil {
		return nil, err
	}
	if err := h.connections.Save(ctx, conn); err != nil {
		return nil, domain.Wrap(domain.CodeImportFailed, "failed to save connection", err)
	}
	return conn, nil
}

// progressReporter emits FileImportProgress events on the 100-record / 5
// percent cadence, suppressing the final record which belongs to Succeeded.
type progressReporter struct {
	events       *events.Manager
	cmd          ImportFromFileCommand
	total        int
	lastReported float64
}

func newProgressReporter(em *events.Manager, cmd ImportFromFileCommand, total int) *progressReporter {
	return &progressReporter{events: em, cmd: cmd, total: total}
}

func (p *progressReporter) report(processed int) {
	if p.total == 0 || processed >= p.total {
		return
	}
	percent := float64(processed) / float64(p.total) * 100
	if processed%100 != 0 && percent < p.lastReported+5 {
		return
	}
	p.lastReported = percent
	p.events.EmitTyped(events.FileImportProgress, moduleName, p.cmd.UserID, &events.FileImportProgressData{
		ProviderSlug:     p.cmd.ProviderSlug,
		FileName:         p.cmd.FileName,
		FileFormat:       p.cmd.FileFormat,
		RecordsProcessed: processed,
		TotalRecords:     p.total,
		ProgressPercent:  percent,
	})
}
