package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SyncResultData contains data for the Succeeded phase of sync workflows.
type SyncResultData struct {
	ConnectionID string `json:"connection_id"`
	AccountID    string `json:"account_id,omitempty"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	Unchanged    int    `json:"unchanged"`
	Deactivated  int    `json:"deactivated,omitempty"`
	Skipped      int    `json:"skipped,omitempty"`
	Errors       int    `json:"errors"`
	Total        int    `json:"total"`
}

// EventType returns the event type for SyncResultData
func (d *SyncResultData) EventType() EventType {
	return AccountSyncSucceeded
}

// FailedData contains data for any *Failed event. Reason is the stable error
// code; consumers branch on it.
type FailedData struct {
	ConnectionID string `json:"connection_id,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
	Reason       string `json:"reason"`
}

// EventType returns the event type for FailedData
func (d *FailedData) EventType() EventType {
	return ErrorOccurred
}

// AccountBalanceUpdatedData contains data for AccountBalanceUpdated events.
// Amounts are stringified decimals.
type AccountBalanceUpdatedData struct {
	AccountID       string `json:"account_id"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
	Currency        string `json:"currency"`
}

// EventType returns the event type for AccountBalanceUpdatedData
func (d *AccountBalanceUpdatedData) EventType() EventType {
	return AccountBalanceUpdated
}

// FileImportProgressData contains data for FileImportProgress events
type FileImportProgressData struct {
	ProviderSlug     string  `json:"provider_slug"`
	FileName         string  `json:"file_name"`
	FileFormat       string  `json:"file_format"`
	RecordsProcessed int     `json:"records_processed"`
	TotalRecords     int     `json:"total_records"`
	ProgressPercent  float64 `json:"progress_percent"`
}

// EventType returns the event type for FileImportProgressData
func (d *FileImportProgressData) EventType() EventType {
	return FileImportProgress
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
