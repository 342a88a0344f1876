package domain

import (
	"errors"
	"fmt"
)

// Stable business error codes. Handlers branch on these; the HTTP layer maps
// them to status codes. Detail text is for humans, codes are the contract.
const (
	// Value objects
	CodeCurrencyMismatch = "CURRENCY_MISMATCH"

	// Entity state machines
	CodeCannotTransitionToActive  = "CANNOT_TRANSITION_TO_ACTIVE"
	CodeCannotTransitionToExpired = "CANNOT_TRANSITION_TO_EXPIRED"
	CodeCannotTransitionToRevoked = "CANNOT_TRANSITION_TO_REVOKED"
	CodeCannotTransitionToFailed  = "CANNOT_TRANSITION_TO_FAILED"
	CodeCredentialsRequired       = "CREDENTIALS_REQUIRED"
	CodeNotConnected              = "NOT_CONNECTED"
	CodeInvalidStatusTransition   = "INVALID_STATUS_TRANSITION"

	// Ownership
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	CodeHoldingNotFound     = "HOLDING_NOT_FOUND"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeConnectionNotFound  = "CONNECTION_NOT_FOUND"
	CodeNotOwnedByUser      = "NOT_OWNED_BY_USER"

	// Commands
	CodeInvalidCredentials          = "INVALID_CREDENTIALS"
	CodeInvalidProviderSlug         = "INVALID_PROVIDER_SLUG"
	CodeDatabaseError               = "DATABASE_ERROR"
	CodeNotActive                   = "NOT_ACTIVE"
	CodeConnectionNotActive         = "CONNECTION_NOT_ACTIVE"
	CodeCredentialsInvalid          = "CREDENTIALS_INVALID"
	CodeCredentialsDecryptionFailed = "CREDENTIALS_DECRYPTION_FAILED"
	CodeProviderError               = "PROVIDER_ERROR"
	CodeRecentlySynced              = "RECENTLY_SYNCED"
	CodeNoAccounts                  = "NO_ACCOUNTS"
	CodeProviderNotFound            = "PROVIDER_NOT_FOUND"
	CodeInvalidFile                 = "INVALID_FILE"
	CodeImportFailed                = "IMPORT_FAILED"
	CodeCancelled                   = "CANCELLED"

	// Queries
	CodeInvalidDateRange = "INVALID_DATE_RANGE"
	CodeInvalidSource    = "INVALID_SOURCE"
	CodeInvalidAssetType = "INVALID_ASSET_TYPE"
)

// Error is a business failure with a stable code. It is the error-return
// rendition of a Result failure: handlers return it instead of panicking,
// and callers branch on Code via CodeOf.
type Error struct {
	Code   string
	Detail string
	Err    error
}

// Error implements the error interface as "<code>: <detail>".
func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a coded business error.
func E(code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Ef creates a coded business error with a formatted detail.
func Ef(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded business error that preserves the underlying cause.
func Wrap(code, detail string, err error) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// CodeOf extracts the stable code from an error chain. Returns empty string
// for nil and plain (non-business) errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
