package snapshots

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/aggregator/internal/domain"
)

// MoneyDTO projects a Money value into its wire shape.
type MoneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func moneyDTO(m domain.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount.String(), Currency: m.Currency}
}

func moneyDTOPtr(m *domain.Money) *MoneyDTO {
	if m == nil {
		return nil
	}
	dto := moneyDTO(*m)
	return &dto
}

// SnapshotDTO is the read-side projection of a balance snapshot. Change
// fields are relative to the previous snapshot in the result set and are nil
// on the first row or across a currency change.
type SnapshotDTO struct {
	ID               string     `json:"id"`
	AccountID        string     `json:"account_id"`
	Balance          MoneyDTO   `json:"balance"`
	AvailableBalance *MoneyDTO  `json:"available_balance,omitempty"`
	HoldingsValue    *MoneyDTO  `json:"holdings_value,omitempty"`
	CashValue        *MoneyDTO  `json:"cash_value,omitempty"`
	Source           string     `json:"source"`
	CapturedAt       time.Time  `json:"captured_at"`
	ChangeAmount     *string    `json:"change_amount,omitempty"`
	ChangePercent    *string    `json:"change_percent,omitempty"`
}

func toSnapshotDTO(s *domain.BalanceSnapshot) *SnapshotDTO {
	return &SnapshotDTO{
		ID:               s.ID,
		AccountID:        s.AccountID,
		Balance:          moneyDTO(s.Balance),
		AvailableBalance: moneyDTOPtr(s.AvailableBalance),
		HoldingsValue:    moneyDTOPtr(s.HoldingsValue),
		CashValue:        moneyDTOPtr(s.CashValue),
		Source:           string(s.Source),
		CapturedAt:       s.CapturedAt,
	}
}

// BalanceHistoryResult is the period summary plus per-snapshot deltas.
type BalanceHistoryResult struct {
	AccountID          string         `json:"account_id"`
	Currency           string         `json:"currency"`
	StartBalance       string         `json:"start_balance"`
	EndBalance         string         `json:"end_balance"`
	TotalChange        string         `json:"total_change"`
	TotalChangePercent *string        `json:"total_change_percent,omitempty"`
	Snapshots          []*SnapshotDTO `json:"snapshots"`
}

// LatestSnapshotsResult carries one snapshot per account plus per-currency
// totals.
type LatestSnapshotsResult struct {
	Snapshots       []*SnapshotDTO    `json:"snapshots"`
	TotalByCurrency map[string]string `json:"total_by_currency"`
}

// ownershipVerifier is the slice of the ownership chain the queries need.
type ownershipVerifier interface {
	VerifyAccountOwnershipOnly(ctx context.Context, accountID, userID string) error
}

// Queries serves balance history read models.
type Queries struct {
	repo      *Repository
	ownership ownershipVerifier
	log       zerolog.Logger
}

// NewQueries creates the snapshot query handlers.
func NewQueries(repo *Repository, ownership ownershipVerifier, log zerolog.Logger) *Queries {
	return &Queries{
		repo:      repo,
		ownership: ownership,
		log:       log.With().Str("module", "snapshots").Logger(),
	}
}

func validateRange(start, end time.Time) error {
	if !start.Before(end) {
		return domain.E(domain.CodeInvalidDateRange, "start date must be before end date")
	}
	return nil
}

func resolveSource(source *string) (*domain.SnapshotSource, error) {
	if source == nil {
		return nil, nil
	}
	if !domain.ValidSnapshotSource(*source) {
		return nil, domain.Ef(domain.CodeInvalidSource, "unknown snapshot source %q", *source)
	}
	s := domain.SnapshotSource(*source)
	return &s, nil
}

// GetBalanceHistory returns an account's snapshots in a date range, oldest
// first, with per-snapshot deltas and a period summary.
func (q *Queries) GetBalanceHistory(ctx context.Context, userID, accountID string, start, end time.Time, source *string) (*BalanceHistoryResult, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	src, err := resolveSource(source)
	if err != nil {
		return nil, err
	}
	if err := q.ownership.VerifyAccountOwnershipOnly(ctx, accountID, userID); err != nil {
		return nil, err
	}

	snaps, err := q.repo.FindByAccountIDInRange(ctx, accountID, start, end, src)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load snapshots", err)
	}

	result := &BalanceHistoryResult{AccountID: accountID, Snapshots: make([]*SnapshotDTO, 0, len(snaps))}
	var prev *domain.BalanceSnapshot
	for _, snap := range snaps {
		dto := toSnapshotDTO(snap)
		if prev != nil && prev.Currency == snap.Currency {
			change := snap.Balance.Amount.Sub(prev.Balance.Amount)
			amount := change.String()
			dto.ChangeAmount = &amount
			if !prev.Balance.Amount.IsZero() {
				pct := change.Div(prev.Balance.Amount).Mul(decimal.NewFromInt(100)).StringFixed(2)
				dto.ChangePercent = &pct
			}
		}
		result.Snapshots = append(result.Snapshots, dto)
		prev = snap
	}

	if len(snaps) > 0 {
		first, last := snaps[0], snaps[len(snaps)-1]
		result.Currency = first.Currency
		result.StartBalance = first.Balance.Amount.String()
		result.EndBalance = last.Balance.Amount.String()
		totalChange := last.Balance.Amount.Sub(first.Balance.Amount)
		result.TotalChange = totalChange.String()
		if !first.Balance.Amount.IsZero() {
			pct := totalChange.Div(first.Balance.Amount).Mul(decimal.NewFromInt(100)).StringFixed(2)
			result.TotalChangePercent = &pct
		}
	}
	return result, nil
}

// GetLatestBalanceSnapshots returns the most recent snapshot of each of a
// user's accounts, with balances summed per currency.
func (q *Queries) GetLatestBalanceSnapshots(ctx context.Context, userID string) (*LatestSnapshotsResult, error) {
	snaps, err := q.repo.FindLatestByUserID(ctx, userID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load snapshots", err)
	}

	result := &LatestSnapshotsResult{
		Snapshots:       make([]*SnapshotDTO, 0, len(snaps)),
		TotalByCurrency: make(map[string]string),
	}
	totals := make(map[string]decimal.Decimal)
	for _, snap := range snaps {
		result.Snapshots = append(result.Snapshots, toSnapshotDTO(snap))
		totals[snap.Currency] = totals[snap.Currency].Add(snap.Balance.Amount)
	}
	for currency, total := range totals {
		result.TotalByCurrency[currency] = total.String()
	}
	return result, nil
}

// GetUserBalanceHistory returns snapshots across all of a user's accounts in
// a range, oldest first. No per-snapshot deltas: changes across different
// accounts are not meaningful.
func (q *Queries) GetUserBalanceHistory(ctx context.Context, userID string, start, end time.Time, source *string) ([]*SnapshotDTO, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	src, err := resolveSource(source)
	if err != nil {
		return nil, err
	}

	snaps, err := q.repo.FindByUserIDInRange(ctx, userID, start, end, src)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load snapshots", err)
	}

	dtos := make([]*SnapshotDTO, 0, len(snaps))
	for _, snap := range snaps {
		dtos = append(dtos, toSnapshotDTO(snap))
	}
	return dtos, nil
}
