// Package web holds the small helpers shared by every module's HTTP
// handlers: JSON writing, business-code to status mapping, and request
// identity extraction.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// UserID extracts the authenticated user id. Authentication itself is an
// external collaborator; the gateway injects the header.
func UserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// WriteJSON encodes data as a JSON response.
func WriteJSON(log zerolog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// WriteError maps a business error to its HTTP status and writes the error
// body. Plain errors become 500s without leaking internals.
func WriteError(log zerolog.Logger, w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := StatusForCode(code)

	body := map[string]string{"code": code}
	var de *domain.Error
	if errors.As(err, &de) {
		body["error"] = de.Detail
	} else {
		body["code"] = domain.CodeDatabaseError
		body["error"] = "internal error"
		log.Error().Err(err).Msg("unhandled error in HTTP handler")
	}
	WriteJSON(log, w, status, body)
}

// WriteBadRequest writes a 400 with a stable code and message.
func WriteBadRequest(log zerolog.Logger, w http.ResponseWriter, code, message string) {
	WriteJSON(log, w, http.StatusBadRequest, map[string]string{"code": code, "error": message})
}

// StatusForCode maps stable business codes to HTTP statuses.
func StatusForCode(code string) int {
	switch code {
	case domain.CodeConnectionNotFound, domain.CodeAccountNotFound,
		domain.CodeHoldingNotFound, domain.CodeTransactionNotFound,
		domain.CodeProviderNotFound:
		return http.StatusNotFound
	case domain.CodeNotOwnedByUser:
		return http.StatusForbidden
	case domain.CodeInvalidCredentials, domain.CodeInvalidProviderSlug,
		domain.CodeInvalidDateRange, domain.CodeInvalidSource,
		domain.CodeInvalidAssetType, domain.CodeInvalidFile,
		domain.CodeCurrencyMismatch, domain.CodeNoAccounts,
		domain.CodeCredentialsRequired:
		return http.StatusBadRequest
	case domain.CodeRecentlySynced:
		return http.StatusTooManyRequests
	case domain.CodeNotActive, domain.CodeNotConnected,
		domain.CodeConnectionNotActive, domain.CodeCredentialsInvalid,
		domain.CodeInvalidStatusTransition,
		domain.CodeCannotTransitionToActive, domain.CodeCannotTransitionToExpired,
		domain.CodeCannotTransitionToRevoked, domain.CodeCannotTransitionToFailed:
		return http.StatusConflict
	case domain.CodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ParseTimeParam parses an RFC 3339 or date-only query parameter. Returns nil
// when the parameter is absent.
func ParseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
	}
	u := t.UTC()
	return &u, nil
}
