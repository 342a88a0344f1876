package sync

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/web"
)

// maxImportSize caps uploaded statement files at 10 MiB.
const maxImportSize = 10 << 20

// HTTPHandler exposes the sync commands over HTTP.
type HTTPHandler struct {
	handler *Handler
	log     zerolog.Logger
}

// NewHTTPHandler creates a sync HTTP handler.
func NewHTTPHandler(handler *Handler, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		handler: handler,
		log:     log.With().Str("handler", "sync").Logger(),
	}
}

// Routes mounts the sync endpoints.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/connections/{id}/sync/accounts", h.HandleSyncAccounts)
	r.Post("/connections/{id}/sync/transactions", h.HandleSyncTransactions)
	r.Post("/accounts/{id}/sync/holdings", h.HandleSyncHoldings)
	r.Post("/imports/file", h.HandleImportFromFile)
}

// HandleSyncAccounts pulls accounts for a connection. Supports ?force=true to
// bypass the minimum sync interval.
// POST /api/connections/{id}/sync/accounts
func (h *HTTPHandler) HandleSyncAccounts(w http.ResponseWriter, r *http.Request) {
	result, err := h.handler.SyncAccounts(r.Context(), SyncAccountsCommand{
		UserID:       web.UserID(r),
		ConnectionID: chi.URLParam(r, "id"),
		Force:        r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}

// HandleSyncHoldings pulls holdings for one account.
// POST /api/accounts/{id}/sync/holdings
func (h *HTTPHandler) HandleSyncHoldings(w http.ResponseWriter, r *http.Request) {
	result, err := h.handler.SyncHoldings(r.Context(), SyncHoldingsCommand{
		UserID:    web.UserID(r),
		AccountID: chi.URLParam(r, "id"),
		Force:     r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}

// HandleSyncTransactions pulls transactions for one or all accounts of a
// connection. Supports ?account_id=, ?start_date= and ?end_date=.
// POST /api/connections/{id}/sync/transactions
func (h *HTTPHandler) HandleSyncTransactions(w http.ResponseWriter, r *http.Request) {
	start, err := web.ParseTimeParam(r, "start_date")
	if err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidDateRange, "invalid start_date")
		return
	}
	end, err := web.ParseTimeParam(r, "end_date")
	if err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidDateRange, "invalid end_date")
		return
	}
	var accountID *string
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID = &raw
	}

	result, err := h.handler.SyncTransactions(r.Context(), SyncTransactionsCommand{
		UserID:       web.UserID(r),
		ConnectionID: chi.URLParam(r, "id"),
		AccountID:    accountID,
		StartDate:    start,
		EndDate:      end,
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}

// HandleImportFromFile ingests a statement file uploaded as multipart form
// data with fields "file", "provider_slug" and optional "file_format" (taken
// from the file extension when absent).
// POST /api/imports/file
func (h *HTTPHandler) HandleImportFromFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidFile, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidFile, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxImportSize))
	if err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidFile, "failed to read file")
		return
	}

	slug := r.FormValue("provider_slug")
	if slug == "" {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidProviderSlug, "provider_slug is required")
		return
	}
	format := r.FormValue("file_format")
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	}

	result, err := h.handler.ImportFromFile(r.Context(), ImportFromFileCommand{
		UserID:       web.UserID(r),
		ProviderSlug: slug,
		FileName:     header.Filename,
		FileFormat:   format,
		FileContent:  content,
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}
