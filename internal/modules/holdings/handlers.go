package holdings

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/web"
)

// Handler exposes the holding queries over HTTP.
type Handler struct {
	queries *Queries
	log     zerolog.Logger
}

// NewHandler creates a holding HTTP handler.
func NewHandler(queries *Queries, log zerolog.Logger) *Handler {
	return &Handler{
		queries: queries,
		log:     log.With().Str("handler", "holdings").Logger(),
	}
}

// Routes mounts the holding endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/holdings", h.HandleListByUser)
	r.Get("/holdings/{id}", h.HandleGet)
	r.Get("/accounts/{id}/holdings", h.HandleListByAccount)
}

func holdingFilter(r *http.Request) HoldingFilter {
	filter := HoldingFilter{Symbol: r.URL.Query().Get("symbol")}
	if raw := r.URL.Query().Get("asset_type"); raw != "" {
		filter.AssetType = &raw
	}
	return filter
}

func includeInactive(r *http.Request) bool {
	return r.URL.Query().Get("include_inactive") == "true"
}

// HandleGet returns one holding.
// GET /api/holdings/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	dto, err := h.queries.GetHolding(r.Context(), web.UserID(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dto)
}

// HandleListByAccount returns an account's holdings with per-currency totals.
// Supports ?asset_type=, ?symbol= and ?include_inactive=true.
// GET /api/accounts/{id}/holdings
func (h *Handler) HandleListByAccount(w http.ResponseWriter, r *http.Request) {
	result, err := h.queries.ListHoldingsByAccount(r.Context(), web.UserID(r),
		chi.URLParam(r, "id"), !includeInactive(r), holdingFilter(r))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}

// HandleListByUser returns all holdings across the user's accounts.
// GET /api/holdings
func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	result, err := h.queries.ListHoldingsByUser(r.Context(), web.UserID(r),
		!includeInactive(r), holdingFilter(r))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, result)
}
