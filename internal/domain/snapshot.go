package domain

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotSource records which workflow captured a balance snapshot.
type SnapshotSource string

const (
	SourceAccountSync       SnapshotSource = "ACCOUNT_SYNC"
	SourceHoldingsSync      SnapshotSource = "HOLDINGS_SYNC"
	SourceManualSync        SnapshotSource = "MANUAL_SYNC"
	SourceScheduledSync     SnapshotSource = "SCHEDULED_SYNC"
	SourceInitialConnection SnapshotSource = "INITIAL_CONNECTION"
)

// ValidSnapshotSource reports whether s is a known source value.
func ValidSnapshotSource(s string) bool {
	switch SnapshotSource(s) {
	case SourceAccountSync, SourceHoldingsSync, SourceManualSync, SourceScheduledSync, SourceInitialConnection:
		return true
	}
	return false
}

// BalanceSnapshot is an immutable point-in-time record of an account balance.
// Snapshots are insert-only; history is never rewritten.
type BalanceSnapshot struct {
	ID               string
	AccountID        string
	Balance          Money
	AvailableBalance *Money
	HoldingsValue    *Money
	CashValue        *Money
	Currency         string
	Source           SnapshotSource
	ProviderMetadata map[string]interface{}
	CapturedAt       time.Time
	CreatedAt        time.Time
}

// NewBalanceSnapshot creates a snapshot. Every Money field must carry the
// snapshot currency.
func NewBalanceSnapshot(accountID string, balance Money, available, holdingsValue, cashValue *Money, source SnapshotSource, metadata map[string]interface{}, capturedAt, now time.Time) (*BalanceSnapshot, error) {
	currency := balance.Currency
	for _, m := range []*Money{available, holdingsValue, cashValue} {
		if m != nil && m.Currency != currency {
			return nil, Ef(CodeCurrencyMismatch, "snapshot field currency %s != snapshot currency %s", m.Currency, currency)
		}
	}

	return &BalanceSnapshot{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Balance:          balance,
		AvailableBalance: available,
		HoldingsValue:    holdingsValue,
		CashValue:        cashValue,
		Currency:         currency,
		Source:           source,
		ProviderMetadata: metadata,
		CapturedAt:       capturedAt,
		CreatedAt:        now,
	}, nil
}
