package connections

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
)

// ConnectionDTO is the read-side projection of a provider connection.
// Credentials never cross this boundary; only their expiry is exposed.
type ConnectionDTO struct {
	ID                    string     `json:"id"`
	ProviderID            string     `json:"provider_id"`
	ProviderSlug          string     `json:"provider_slug"`
	Alias                 *string    `json:"alias,omitempty"`
	Status                string     `json:"status"`
	IsConnected           bool       `json:"is_connected"`
	NeedsReauthentication bool       `json:"needs_reauthentication"`
	CredentialsExpiresAt  *time.Time `json:"credentials_expires_at,omitempty"`
	ConnectedAt           *time.Time `json:"connected_at,omitempty"`
	LastSyncAt            *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// connectionReader is the persistence surface the query handlers need.
type connectionReader interface {
	FindByID(ctx context.Context, id string) (*domain.ProviderConnection, error)
	FindByUserID(ctx context.Context, userID string) ([]*domain.ProviderConnection, error)
}

// Queries serves connection read models. Queries are side-effect-free and
// emit no events.
type Queries struct {
	store connectionReader
	log   zerolog.Logger
}

// NewQueries creates the connection query handlers.
func NewQueries(store connectionReader, log zerolog.Logger) *Queries {
	return &Queries{
		store: store,
		log:   log.With().Str("module", moduleName).Logger(),
	}
}

// GetProviderConnection returns one connection owned by the user.
func (q *Queries) GetProviderConnection(ctx context.Context, userID, connectionID string) (*ConnectionDTO, error) {
	conn, err := q.store.FindByID(ctx, connectionID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load connection", err)
	}
	if conn == nil {
		return nil, domain.Ef(domain.CodeConnectionNotFound, "connection %s not found", connectionID)
	}
	if conn.UserID != userID {
		return nil, domain.E(domain.CodeNotOwnedByUser, "connection does not belong to user")
	}
	return toConnectionDTO(conn), nil
}

// ListProviderConnections returns all of a user's connections.
func (q *Queries) ListProviderConnections(ctx context.Context, userID string) ([]*ConnectionDTO, error) {
	conns, err := q.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to list connections", err)
	}

	dtos := make([]*ConnectionDTO, 0, len(conns))
	for _, conn := range conns {
		dtos = append(dtos, toConnectionDTO(conn))
	}
	return dtos, nil
}

func toConnectionDTO(conn *domain.ProviderConnection) *ConnectionDTO {
	dto := &ConnectionDTO{
		ID:                    conn.ID,
		ProviderID:            conn.ProviderID,
		ProviderSlug:          conn.ProviderSlug,
		Alias:                 conn.Alias,
		Status:                string(conn.Status),
		IsConnected:           conn.IsConnected(),
		NeedsReauthentication: conn.NeedsReauthentication(),
		ConnectedAt:           conn.ConnectedAt,
		LastSyncAt:            conn.LastSyncAt,
		CreatedAt:             conn.CreatedAt,
		UpdatedAt:             conn.UpdatedAt,
	}
	if conn.Credentials != nil {
		dto.CredentialsExpiresAt = conn.Credentials.ExpiresAt
	}
	return dto
}
