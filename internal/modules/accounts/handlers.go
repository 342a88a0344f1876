package accounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/web"
)

// Handler exposes the account queries over HTTP.
type Handler struct {
	queries *Queries
	log     zerolog.Logger
}

// NewHandler creates an account HTTP handler.
func NewHandler(queries *Queries, log zerolog.Logger) *Handler {
	return &Handler{
		queries: queries,
		log:     log.With().Str("handler", "accounts").Logger(),
	}
}

// Routes mounts the account endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/accounts", h.HandleList)
	r.Get("/accounts/{id}", h.HandleGet)
}

// HandleGet returns one account.
// GET /api/accounts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	dto, err := h.queries.GetAccount(r.Context(), web.UserID(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dto)
}

// HandleList returns the user's accounts. Supports ?active_only=true and
// ?type=BROKERAGE filters.
// GET /api/accounts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	var accountType *domain.AccountType
	if raw := r.URL.Query().Get("type"); raw != "" {
		at := domain.AccountType(raw)
		accountType = &at
	}

	dtos, err := h.queries.ListAccounts(r.Context(), web.UserID(r), activeOnly, accountType)
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dtos)
}
