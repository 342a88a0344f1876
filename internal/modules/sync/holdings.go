package sync

import (
	"context"
	"time"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
	"github.com/aristath/aggregator/internal/providers"
)

// SyncHoldingsCommand carries the input for SyncHoldings.
type SyncHoldingsCommand struct {
	UserID    string
	AccountID string
	Force     bool
}

// SyncHoldings pulls the positions of one account. Fetched holdings are
// created or updated first; afterwards any active holding absent from the
// provider response is deactivated.
func (h *Handler) SyncHoldings(ctx context.Context, cmd SyncHoldingsCommand) (*Result, error) {
	h.events.EmitForUser(events.HoldingsSyncAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"account_id": cmd.AccountID,
		"force":      cmd.Force,
	})
	failCtx := map[string]interface{}{"account_id": cmd.AccountID}
	now := h.now().UTC()

	acct, err := h.accounts.FindByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to load account", err), failCtx)
	}
	if acct == nil {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID,
			domain.Ef(domain.CodeAccountNotFound, "account %s not found", cmd.AccountID), failCtx)
	}

	conn, bundle, adapter, err := h.loadSyncTarget(ctx, acct.ConnectionID, cmd.UserID, now)
	if err != nil {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID, err, failCtx)
	}
	if recentlySynced(acct.LastSyncedAt, now, cmd.Force) {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID,
			domain.E(domain.CodeRecentlySynced, "account was synced less than 5 minutes ago"), failCtx)
	}

	fetched, err := adapter.FetchHoldings(ctx, bundle, acct.ProviderAccountID)
	if err != nil {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID, err, failCtx)
	}

	result := &Result{Total: len(fetched)}
	seen := make(map[string]bool, len(fetched))
	for _, data := range fetched {
		seen[data.ProviderHoldingID] = true
		outcome, err := h.upsertHolding(ctx, acct.ID, data, now)
		if err != nil {
			h.log.Warn().Err(err).
				Str("provider_holding_id", data.ProviderHoldingID).
				Msg("holding upsert failed, continuing")
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
	}

	// Sweep: positions the provider no longer reports are closed.
	active, err := h.holdings.ListByAccount(ctx, acct.ID, true)
	if err != nil {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to list holdings", err), failCtx)
	}
	for _, holding := range active {
		if seen[holding.ProviderHoldingID] {
			continue
		}
		holding.Deactivate(now)
		if err := h.holdings.Save(ctx, holding); err != nil {
			h.log.Warn().Err(err).Str("holding_id", holding.ID).Msg("failed to deactivate holding")
			result.Errors++
			continue
		}
		result.Deactivated++
	}

	acct.MarkSynced(now)
	if err := h.accounts.Save(ctx, acct); err != nil {
		return nil, h.fail(events.HoldingsSyncFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to record sync", err), failCtx)
	}

	h.events.EmitTyped(events.HoldingsSyncSucceeded, moduleName, cmd.UserID, &events.SyncResultData{
		ConnectionID: conn.ID,
		AccountID:    acct.ID,
		Created:      result.Created,
		Updated:      result.Updated,
		Unchanged:    result.Unchanged,
		Deactivated:  result.Deactivated,
		Errors:       result.Errors,
		Total:        result.Total,
	})
	h.log.Info().
		Str("account_id", acct.ID).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("deactivated", result.Deactivated).
		Msg("holdings sync complete")
	return result, nil
}

func (h *Handler) upsertHolding(ctx context.Context, accountID string, data providers.HoldingData, now time.Time) (upsertOutcome, error) {
	costBasis := domain.Money{Amount: data.CostBasis, Currency: data.Currency}
	marketValue := domain.Money{Amount: data.MarketValue, Currency: data.Currency}
	var averagePrice, currentPrice *domain.Money
	if data.AveragePrice != nil {
		averagePrice = &domain.Money{Amount: *data.AveragePrice, Currency: data.Currency}
	}
	if data.CurrentPrice != nil {
		currentPrice = &domain.Money{Amount: *data.CurrentPrice, Currency: data.Currency}
	}

	existing, err := h.holdings.FindByProviderHoldingID(ctx, accountID, data.ProviderHoldingID)
	if err != nil {
		return outcomeUnchanged, err
	}

	if existing == nil {
		holding, err := domain.NewHolding(accountID, data.ProviderHoldingID, data.Symbol,
			data.SecurityName, domain.NormalizeAssetType(data.AssetType), data.Quantity,
			costBasis, marketValue, averagePrice, currentPrice, data.RawData, now)
		if err != nil {
			return outcomeUnchanged, err
		}
		if err := h.holdings.Save(ctx, holding); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeCreated, nil
	}

	changed := !existing.Quantity.Equal(data.Quantity) ||
		!existing.CostBasis.Equal(costBasis) ||
		!existing.MarketValue.Equal(marketValue) ||
		!existing.IsActive

	if changed {
		if err := existing.UpdateFromProvider(data.Quantity, costBasis, marketValue,
			averagePrice, currentPrice, data.SecurityName, data.RawData, now); err != nil {
			return outcomeUnchanged, err
		}
	}
	existing.MarkSynced(now)
	if err := h.holdings.Save(ctx, existing); err != nil {
		return outcomeUnchanged, err
	}
	if changed {
		return outcomeUpdated, nil
	}
	return outcomeUnchanged, nil
}
