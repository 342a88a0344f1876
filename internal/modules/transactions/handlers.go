package transactions

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/web"
)

// Handler exposes the transaction queries over HTTP.
type Handler struct {
	queries *Queries
	log     zerolog.Logger
}

// NewHandler creates a transaction HTTP handler.
func NewHandler(queries *Queries, log zerolog.Logger) *Handler {
	return &Handler{
		queries: queries,
		log:     log.With().Str("handler", "transactions").Logger(),
	}
}

// Routes mounts the transaction endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/transactions/{id}", h.HandleGet)
	r.Get("/accounts/{id}/transactions", h.HandleListByAccount)
	r.Get("/accounts/{id}/transactions/range", h.HandleListByDateRange)
	r.Get("/accounts/{id}/securities/{symbol}/transactions", h.HandleListBySecurity)
}

func intParam(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

// HandleGet returns one transaction.
// GET /api/transactions/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	dto, err := h.queries.GetTransaction(r.Context(), web.UserID(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dto)
}

// HandleListByAccount returns a page of an account's transactions. Supports
// ?limit=, ?offset= and ?type=TRADE.
// GET /api/accounts/{id}/transactions
func (h *Handler) HandleListByAccount(w http.ResponseWriter, r *http.Request) {
	var txnType *domain.TransactionType
	if raw := r.URL.Query().Get("type"); raw != "" {
		tt := domain.TransactionType(raw)
		txnType = &tt
	}

	page, err := h.queries.ListTransactionsByAccount(r.Context(), web.UserID(r),
		chi.URLParam(r, "id"), txnType, intParam(r, "limit"), intParam(r, "offset"))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, page)
}

// HandleListByDateRange returns an account's transactions within
// ?start_date= and ?end_date=, oldest first.
// GET /api/accounts/{id}/transactions/range
func (h *Handler) HandleListByDateRange(w http.ResponseWriter, r *http.Request) {
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

	dtos, err := h.queries.ListTransactionsByDateRange(r.Context(), web.UserID(r),
		chi.URLParam(r, "id"), *start, *end)
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dtos)
}

// HandleListBySecurity returns an account's transactions for one symbol.
// GET /api/accounts/{id}/securities/{symbol}/transactions
func (h *Handler) HandleListBySecurity(w http.ResponseWriter, r *http.Request) {
	dtos, err := h.queries.ListSecurityTransactions(r.Context(), web.UserID(r),
		chi.URLParam(r, "id"), chi.URLParam(r, "symbol"), intParam(r, "limit"))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dtos)
}
