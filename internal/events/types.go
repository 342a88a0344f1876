// Package events provides event management functionality.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents different event types
type EventType string

const (
	// Provider connection lifecycle
	ProviderConnectionAttempted EventType = "PROVIDER_CONNECTION_ATTEMPTED"
	ProviderConnectionSucceeded EventType = "PROVIDER_CONNECTION_SUCCEEDED"
	ProviderConnectionFailed    EventType = "PROVIDER_CONNECTION_FAILED"

	ProviderDisconnectionAttempted EventType = "PROVIDER_DISCONNECTION_ATTEMPTED"
	ProviderDisconnectionSucceeded EventType = "PROVIDER_DISCONNECTION_SUCCEEDED"
	ProviderDisconnectionFailed    EventType = "PROVIDER_DISCONNECTION_FAILED"

	ProviderTokenRefreshAttempted EventType = "PROVIDER_TOKEN_REFRESH_ATTEMPTED"
	ProviderTokenRefreshSucceeded EventType = "PROVIDER_TOKEN_REFRESH_SUCCEEDED"
	ProviderTokenRefreshFailed    EventType = "PROVIDER_TOKEN_REFRESH_FAILED"

	// Sync workflows
	AccountSyncAttempted EventType = "ACCOUNT_SYNC_ATTEMPTED"
	AccountSyncSucceeded EventType = "ACCOUNT_SYNC_SUCCEEDED"
	AccountSyncFailed    EventType = "ACCOUNT_SYNC_FAILED"

	TransactionSyncAttempted EventType = "TRANSACTION_SYNC_ATTEMPTED"
	TransactionSyncSucceeded EventType = "TRANSACTION_SYNC_SUCCEEDED"
	TransactionSyncFailed    EventType = "TRANSACTION_SYNC_FAILED"

	HoldingsSyncAttempted EventType = "HOLDINGS_SYNC_ATTEMPTED"
	HoldingsSyncSucceeded EventType = "HOLDINGS_SYNC_SUCCEEDED"
	HoldingsSyncFailed    EventType = "HOLDINGS_SYNC_FAILED"

	// File import adds a progress phase between attempted and succeeded
	FileImportAttempted EventType = "FILE_IMPORT_ATTEMPTED"
	FileImportProgress  EventType = "FILE_IMPORT_PROGRESS"
	FileImportSucceeded EventType = "FILE_IMPORT_SUCCEEDED"
	FileImportFailed    EventType = "FILE_IMPORT_FAILED"

	// Secondary events
	AccountBalanceUpdated   EventType = "ACCOUNT_BALANCE_UPDATED"
	CredentialsExpiringSoon EventType = "CREDENTIALS_EXPIRING_SOON"
	ErrorOccurred           EventType = "ERROR_OCCURRED"
)

// Event represents a system event. IDs are time-ordered (UUIDv7) so the
// stream sorts chronologically by id alone.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	UserID     string                 `json:"user_id,omitempty"`
	Module     string                 `json:"module"`
	Data       map[string]interface{} `json:"data"`
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
