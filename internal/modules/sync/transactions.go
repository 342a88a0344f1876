package sync

import (
	"context"
	"time"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
	"github.com/aristath/aggregator/internal/providers"
)

// defaultTransactionWindow is the lookback applied when the command carries
// no date range.
const defaultTransactionWindow = 30 * 24 * time.Hour

// SyncTransactionsCommand carries the input for SyncTransactions. A nil
// AccountID syncs every active account of the connection; a nil date range
// defaults to the last 30 days.
type SyncTransactionsCommand struct {
	UserID       string
	ConnectionID string
	AccountID    *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// SyncTransactions pulls transactions for one or all accounts of a
// connection. Rows are deduplicated by (account_id, provider_transaction_id):
// existing rows are left untouched and counted as skipped. Per-account
// failures are isolated.
func (h *Handler) SyncTransactions(ctx context.Context, cmd SyncTransactionsCommand) (*Result, error) {
	h.events.EmitForUser(events.TransactionSyncAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": cmd.ConnectionID,
	})
	failCtx := map[string]interface{}{"connection_id": cmd.ConnectionID}
	now := h.now().UTC()

	conn, bundle, adapter, err := h.loadSyncTarget(ctx, cmd.ConnectionID, cmd.UserID, now)
	if err != nil {
		return nil, h.fail(events.TransactionSyncFailed, cmd.UserID, err, failCtx)
	}

	start, end := dateWindow(cmd.StartDate, cmd.EndDate, now)

	var accts []*domain.Account
	if cmd.AccountID != nil {
		acct, err := h.accounts.FindByID(ctx, *cmd.AccountID)
		if err != nil {
			return nil, h.fail(events.TransactionSyncFailed, cmd.UserID,
				domain.Wrap(domain.CodeDatabaseError, "failed to load account", err), failCtx)
		}
		if acct == nil || acct.ConnectionID != conn.ID {
			return nil, h.fail(events.TransactionSyncFailed, cmd.UserID,
				domain.Ef(domain.CodeAccountNotFound, "account %s not found", *cmd.AccountID), failCtx)
		}
		accts = []*domain.Account{acct}
	} else {
		accts, err = h.accounts.FindByConnectionID(ctx, conn.ID, true)
		if err != nil {
			return nil, h.fail(events.TransactionSyncFailed, cmd.UserID,
				domain.Wrap(domain.CodeDatabaseError, "failed to list accounts", err), failCtx)
		}
		if len(accts) == 0 {
			return nil, h.fail(events.TransactionSyncFailed, cmd.UserID,
				domain.E(domain.CodeNoAccounts, "connection has no active accounts"), failCtx)
		}
	}

	result := &Result{}
	for _, acct := range accts {
		created, skipped, errs, err := h.syncAccountTransactions(ctx, adapter, bundle, acct, start, end, now, nil)
		if err != nil {
			h.log.Warn().Err(err).Str("account_id", acct.ID).Msg("transaction sync failed for account, continuing")
			result.Errors++
			continue
		}
		result.Created += created
		result.Skipped += skipped
		result.Errors += errs
	}
	result.Total = result.Created + result.Skipped

	h.events.EmitTyped(events.TransactionSyncSucceeded, moduleName, cmd.UserID, &events.SyncResultData{
		ConnectionID: conn.ID,
		Created:      result.Created,
		Skipped:      result.Skipped,
		Errors:       result.Errors,
		Total:        result.Total,
	})
	h.log.Info().
		Str("connection_id", conn.ID).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("transaction sync complete")
	return result, nil
}

// dateWindow resolves the sync range, defaulting to the last 30 days ending
// now.
func dateWindow(start, end *time.Time, now time.Time) (time.Time, time.Time) {
	e := now
	if end != nil {
		e = *end
	}
	s := e.Add(-defaultTransactionWindow)
	if start != nil {
		s = *start
	}
	return s, e
}

// onProgress, when non-nil, is invoked after each processed record with the
// running count. File import uses it to drive progress events.
func (h *Handler) syncAccountTransactions(ctx context.Context, adapter providers.Adapter, bundle crypto.CredentialBundle, acct *domain.Account, start, end time.Time, now time.Time, onProgress func(processed int)) (created, skipped, errs int, err error) {
	fetched, err := adapter.FetchTransactions(ctx, bundle, acct.ProviderAccountID, &start, &end)
	if err != nil {
		return 0, 0, 0, err
	}

	processed := 0
	for _, data := range fetched {
		outcome, insErr := h.insertTransaction(ctx, acct.ID, data, now)
		processed++
		if onProgress != nil {
			onProgress(processed)
		}
		if insErr != nil {
			h.log.Warn().Err(insErr).
				Str("provider_transaction_id", data.ProviderTransactionID).
				Msg("transaction insert failed, continuing")
			errs++
			continue
		}
		if outcome == outcomeCreated {
			created++
		} else {
			skipped++
		}
	}
	return created, skipped, errs, nil
}

// insertTransaction normalizes and inserts one provider transaction unless a
// row with the same provider id already exists. Existing rows are never
// modified here; PENDING to SETTLED progression is not propagated on re-sync.
func (h *Handler) insertTransaction(ctx context.Context, accountID string, data providers.TransactionData, now time.Time) (upsertOutcome, error) {
	existing, err := h.transactions.FindByProviderTransactionID(ctx, accountID, data.ProviderTransactionID)
	if err != nil {
		return outcomeUnchanged, err
	}
	if existing != nil {
		return outcomeUnchanged, nil
	}

	txnType := domain.NormalizeTransactionType(data.TransactionType)
	subtype := domain.NormalizeSubtype(txnType, data.Subtype)
	status := domain.NormalizeTransactionStatus(data.Status)
	amount := domain.Money{Amount: data.Amount, Currency: data.Currency}

	var assetType *domain.AssetType
	if data.AssetType != "" {
		at := domain.NormalizeAssetType(data.AssetType)
		assetType = &at
	}
	var symbol, securityName *string
	if data.Symbol != "" {
		s := data.Symbol
		symbol = &s
	}
	if data.SecurityName != "" {
		n := data.SecurityName
		securityName = &n
	}
	var unitPrice, commission *domain.Money
	if data.UnitPrice != nil {
		unitPrice = &domain.Money{Amount: *data.UnitPrice, Currency: data.Currency}
	}
	if data.Commission != nil {
		commission = &domain.Money{Amount: *data.Commission, Currency: data.Currency}
	}

	txn, err := domain.NewTransaction(accountID, data.ProviderTransactionID, txnType, subtype, status,
		amount, data.Description, assetType, symbol, securityName, data.Quantity,
		unitPrice, commission, data.TransactionDate, data.SettlementDate, data.RawData, now)
	if err != nil {
		return outcomeUnchanged, err
	}
	if err := h.transactions.Save(ctx, txn); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeCreated, nil
}
