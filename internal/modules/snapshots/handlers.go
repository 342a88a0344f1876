package snapshots

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/web"
)

// Handler exposes the balance history queries over HTTP.
type Handler struct {
	queries *Queries
	log     zerolog.Logger
}

// NewHandler creates a snapshot HTTP handler.
func NewHandler(queries *Queries, log zerolog.Logger) *Handler {
	return &Handler{
		queries: queries,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// Routes mounts the balance history endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/accounts/{id}/balance-history", h.HandleAccountHistory)
	r.Get("/balance-snapshots/latest", h.HandleLatest)
	r.Get("/balance-history", h.HandleUserHistory)
}

func sourceParam(r *http.Request) *string {
	if raw := r.URL.Query().Get("source"); raw != "" {
		return &raw
	}
	return nil
}

// HandleAccountHistory returns an account's snapshots in a range with deltas.
// Requires ?start_date= and ?end_date=; supports ?source=.
// GET /api/accounts/{id}/balance-history
func (h *Handler) HandleAccountHistory(w http.ResponseWriter, r *http.Request) {
	start, err := web.ParseTimeParam(r, "start_date")
	if err != nil || start == nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidDateRange, "start_date is required")
		return
	}
	end, err := web.ParseTimeParam(r, "end_date")
	if err != nil || end == nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidDateRange, "end_date is required")
		return
	}

	result, err := h.queries.GetBalanceHistory(r.Context(), web.UserID(r),
		chi.URLParam(r, "id"), *start, *end, sourceParam(r))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}

// HandleLatest returns the newest snapshot of each account with per-currency
// totals.
// GET /api/balance-snapshots/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	result, err := h.queries.GetLatestBalanceSnapshots(r.Context(), web.UserID(r))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}

// HandleUserHistory returns snapshots across all accounts in a range.
// GET /api/balance-history
func (h *Handler) HandleUserHistory(w http.ResponseWriter, r *http.Request) {
	start, err := web.ParseTimeParam(r, "start_date")
	if err != nil || start == nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidDateRange, "start_date is required")
		return
	}
	end, err := web.ParseTimeParam(r, "end_date")
	if err != nil || end == nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidDateRange, "end_date is required")
		return
	}

	dtos, err := h.queries.GetUserBalanceHistory(r.Context(), web.UserID(r), *start, *end, sourceParam(r))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dtos)
}
