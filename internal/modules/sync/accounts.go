package sync

import (
	"context"
	"reflect"
	"time"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
	"github.com/aristath/aggregator/internal/providers"
)

// SyncAccountsCommand carries the input for SyncAccounts.
type SyncAccountsCommand struct {
	UserID       string
	ConnectionID string
	Force        bool
}

// balanceDelta records one observed balance change for the secondary
// AccountBalanceUpdated events emitted after a successful sync.
type balanceDelta struct {
	accountID string
	previous  string
	next      string
	currency  string
}

// SyncAccounts pulls the provider's account list and upserts it. Per-account
// failures are isolated: they increment the error counter and the loop
// continues. Non-forced runs within five minutes of the previous sync are
// rejected with RECENTLY_SYNCED before any provider call.
func (h *Handler) SyncAccounts(ctx context.Context, cmd SyncAccountsCommand) (*Result, error) {
	h.events.EmitForUser(events.AccountSyncAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": cmd.ConnectionID,
		"force":         cmd.Force,
	})
	failCtx := map[string]interface{}{"connection_id": cmd.ConnectionID}
	now := h.now().UTC()

	conn, bundle, adapter, err := h.loadSyncTarget(ctx, cmd.ConnectionID, cmd.UserID, now)
	if err != nil {
		return nil, h.fail(events.AccountSyncFailed, cmd.UserID, err, failCtx)
	}
	if recentlySynced(conn.LastSyncAt, now, cmd.Force) {
		return nil, h.fail(events.AccountSyncFailed, cmd.UserID,
			domain.E(domain.CodeRecentlySynced, "connection was synced less than 5 minutes ago"), failCtx)
	}

	fetched, err := adapter.FetchAccounts(ctx, bundle)
	if err != nil {
		return nil, h.fail(events.AccountSyncFailed, cmd.UserID, err, failCtx)
	}

	result := &Result{Total: len(fetched)}
	var deltas []balanceDelta
	for _, data := range fetched {
		delta, outcome, err := h.upsertAccount(ctx, conn.ID, data, now)
		if err != nil {
			h.log.Warn().Err(err).
				Str("provider_account_id", data.ProviderAccountID).
				Msg("account upsert failed, continuing")
			result.Errors++
			continue
		}
		switch outcome {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
		if delta != nil {
			deltas = append(deltas, *delta)
		}
	}

	if err := conn.RecordSync(now); err == nil {
		if err := h.connections.Save(ctx, conn); err != nil {
			return nil, h.fail(events.AccountSyncFailed, cmd.UserID,
				domain.Wrap(domain.CodeDatabaseError, "failed to record sync", err), failCtx)
		}
	}

	h.events.EmitTyped(events.AccountSyncSucceeded, moduleName, cmd.UserID, &events.SyncResultData{
		ConnectionID: conn.ID,
		Created:      result.Created,
		Updated:      result.Updated,
		Unchanged:    result.Unchanged,
		Errors:       result.Errors,
		Total:        result.Total,
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
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("errors", result.Errors).
		Msg("account sync complete")
	return result, nil
}

type upsertOutcome int

const (
	outcomeCreated upsertOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// upsertAccount creates or updates one account from provider data. A
// non-nil delta is returned when the balance changed (creation counts as a
// change from zero when the opening balance is nonzero).
func (h *Handler) upsertAccount(ctx context.Context, connectionID string, data providers.AccountData, now time.Time) (*balanceDelta, upsertOutcome, error) {
	balance := domain.Money{Amount: data.Balance, Currency: data.Currency}
	var available *domain.Money
	if data.AvailableBalance != nil {
		available = &domain.Money{Amount: *data.AvailableBalance, Currency: data.Currency}
	}

	existing, err := h.accounts.FindByProviderAccountID(ctx, connectionID, data.ProviderAccountID)
	if err != nil {
		return nil, outcomeUnchanged, err
	}

	if existing == nil {
		acct, err := domain.NewAccount(connectionID, data.ProviderAccountID, data.AccountNumberMasked,
			data.Name, domain.NormalizeAccountType(data.AccountType), balance, available,
			data.IsActive, data.RawData, now)
		if err != nil {
			return nil, outcomeUnchanged, err
		}
		if err := h.accounts.Save(ctx, acct); err != nil {
			return nil, outcomeUnchanged, err
		}
		h.captureSnapshot(ctx, acct, domain.SourceInitialConnection, now)

		var delta *balanceDelta
		if !balance.Amount.IsZero() {
			delta = &balanceDelta{
				accountID: acct.ID,
				previous:  "0",
				next:      balance.Amount.String(),
				currency:  balance.Currency,
			}
		}
		return delta, outcomeCreated, nil
	}

	changed := false
	var delta *balanceDelta
	if !existing.Balance.Equal(balance) {
		previous := existing.Balance.Amount.String()
		if err := existing.UpdateBalance(balance, available, now); err != nil {
			return nil, outcomeUnchanged, err
		}
		changed = true
		delta = &balanceDelta{
			accountID: existing.ID,
			previous:  previous,
			next:      balance.Amount.String(),
			currency:  balance.Currency,
		}
	}
	if existing.Name != data.Name {
		name := data.Name
		existing.UpdateFromProvider(&name, nil, nil, now)
		changed = true
	}
	if existing.IsActive != data.IsActive {
		if data.IsActive {
			existing.Activate(now)
		} else {
			existing.Deactivate(now)
		}
		changed = true
	}
	if data.RawData != nil && !reflect.DeepEqual(existing.ProviderMetadata, data.RawData) {
		existing.UpdateFromProvider(nil, nil, data.RawData, now)
		changed = true
	}
	existing.MarkSynced(now)

	if err := h.accounts.Save(ctx, existing); err != nil {
		return nil, outcomeUnchanged, err
	}
	if delta != nil {
		h.captureSnapshot(ctx, existing, domain.SourceAccountSync, now)
	}

	if changed {
		return delta, outcomeUpdated, nil
	}
	return delta, outcomeUnchanged, nil
}

// captureSnapshot appends a balance snapshot. Snapshot failures are logged
// and swallowed: history is best-effort and never blocks a sync.
func (h *Handler) captureSnapshot(ctx context.Context, acct *domain.Account, source domain.SnapshotSource, now time.Time) {
	snap, err := domain.NewBalanceSnapshot(acct.ID, acct.Balance, acct.AvailableBalance, nil, nil,
		source, nil, now, now)
	if err == nil {
		err = h.snapshots.Save(ctx, snap)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("account_id", acct.ID).Msg("failed to capture balance snapshot")
	}
}
