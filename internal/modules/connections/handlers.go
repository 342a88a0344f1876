package connections

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/providers"
	"github.com/aristath/aggregator/internal/web"
)

// Handler exposes the connection commands and queries over HTTP.
type Handler struct {
	commands *Commands
	queries  *Queries
	registry *providers.Registry
	log      zerolog.Logger
}

// NewHandler creates a connection HTTP handler.
func NewHandler(commands *Commands, queries *Queries, registry *providers.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		commands: commands,
		queries:  queries,
		registry: registry,
		log:      log.With().Str("handler", "connections").Logger(),
	}
}

// Routes mounts the connection endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/providers", h.HandleListProviders)
	r.Post("/providers/connect", h.HandleConnect)
	r.Get("/connections", h.HandleList)
	r.Get("/connections/{id}", h.HandleGet)
	r.Put("/connections/{id}/alias", h.HandleUpdateAlias)
	r.Post("/connections/{id}/disconnect", h.HandleDisconnect)
	r.Post("/connections/{id}/refresh", h.HandleRefresh)
}

type connectRequest struct {
	ProviderID     string                 `json:"provider_id"`
	ProviderSlug   string                 `json:"provider_slug"`
	Alias          *string                `json:"alias,omitempty"`
	CredentialType string                 `json:"credential_type"`
	Credentials    map[string]interface{} `json:"credentials"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

// HandleConnect establishes a provider connection.
// POST /api/providers/connect
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidCredentials, "invalid request body")
		return
	}
	if req.ProviderID == "" || req.ProviderSlug == "" {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidProviderSlug, "provider_id and provider_slug are required")
		return
	}
	if !h.registry.Supports(req.ProviderSlug) {
		web.WriteError(h.log, w, domain.Ef(domain.CodeProviderNotFound, "no adapter registered for provider %q", req.ProviderSlug))
		return
	}

	id, err := h.commands.ConnectProvider(r.Context(), ConnectProviderCommand{
		UserID:         web.UserID(r),
		ProviderID:     req.ProviderID,
		ProviderSlug:   req.ProviderSlug,
		Alias:          req.Alias,
		CredentialType: domain.CredentialType(req.CredentialType),
		Credentials:    crypto.CredentialBundle(req.Credentials),
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusCreated, map[string]string{"connection_id": id})
}

// HandleDisconnect moves a connection to DISCONNECTED.
// POST /api/connections/{id}/disconnect
func (h *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	err := h.commands.DisconnectProvider(r.Context(), DisconnectProviderCommand{
		UserID:       web.UserID(r),
		ConnectionID: chi.URLParam(r, "id"),
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, map[string]string{"status": "disconnected"})
}

type refreshRequest struct {
	CredentialType string                 `json:"credential_type"`
	Credentials    map[string]interface{} `json:"credentials"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
}

// HandleRefresh replaces the credentials of an ACTIVE connection.
// POST /api/connections/{id}/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidCredentials, "invalid request body")
		return
	}

	err := h.commands.RefreshProviderTokens(r.Context(), RefreshProviderTokensCommand{
		UserID:         web.UserID(r),
		ConnectionID:   chi.URLParam(r, "id"),
		CredentialType: domain.CredentialType(req.CredentialType),
		Credentials:    crypto.CredentialBundle(req.Credentials),
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, map[string]string{"status": "refreshed"})
}

type aliasRequest struct {
	Alias *string `json:"alias"`
}

// HandleUpdateAlias renames a connection.
// PUT /api/connections/{id}/alias
func (h *Handler) HandleUpdateAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		web.WriteBadRequest(h.log, w, domain.CodeInvalidProviderSlug, "invalid request body")
		return
	}
	if err := h.commands.UpdateAlias(r.Context(), web.UserID(r), chi.URLParam(r, "id"), req.Alias); err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleGet returns one connection.
// GET /api/connections/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	dto, err := h.queries.GetProviderConnection(r.Context(), web.UserID(r), chi.URLParam(r, "id"))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dto)
}

// HandleList returns all of the user's connections.
// GET /api/connections
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	dtos, err := h.queries.ListProviderConnections(r.Context(), web.UserID(r))
	if err != nil {
		web.WriteError(h.log, w, err)
		return
	}
	web.WriteJSON(h.log, w, http.StatusOK, dtos)
}

// HandleListProviders returns the provider slugs with a registered adapter.
// GET /api/providers
func (h *Handler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(h.log, w, http.StatusOK, map[string]interface{}{
		"providers": h.registry.ListSupported(),
	})
}
