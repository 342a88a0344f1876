package connections

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
)

const moduleName = "connections"

// connectionStore is the persistence surface the command handlers need.
type connectionStore interface {
	FindByID(ctx context.Context, id string) (*domain.ProviderConnection, error)
	FindByUserAndProvider(ctx context.Context, userID, providerID string) ([]*domain.ProviderConnection, error)
	Save(ctx context.Context, conn *domain.ProviderConnection) error
}

// Commands orchestrates the connection lifecycle: connect, disconnect and
// token refresh. Every command emits an Attempted event up front and exactly
// one of Succeeded or Failed before returning.
type Commands struct {
	store  connectionStore
	cipher *crypto.Cipher
	events *events.Manager
	log    zerolog.Logger
	now    func() time.Time
}

// NewCommands creates the connection command handlers.
func NewCommands(store connectionStore, cipher *crypto.Cipher, em *events.Manager, log zerolog.Logger) *Commands {
	return &Commands{
		store:  store,
		cipher: cipher,
		events: em,
		log:    log.With().Str("module", moduleName).Logger(),
		now:    time.Now,
	}
}

// ConnectProviderCommand carries the input for ConnectProvider. Credentials
// arrive in plaintext from the OAuth collaborator and are sealed before they
// touch storage.
type ConnectProviderCommand struct {
	UserID         string
	ProviderID     string
	ProviderSlug   string
	Alias          *string
	CredentialType domain.CredentialType
	Credentials    crypto.CredentialBundle
	ExpiresAt      *time.Time
}

// ConnectProvider establishes or re-establishes a user's connection to a
// provider. An existing non-disconnected connection for the same (user,
// provider) pair is re-authenticated in place; otherwise a new connection is
// created. Returns the connection id.
func (c *Commands) ConnectProvider(ctx context.Context, cmd ConnectProviderCommand) (string, error) {
	c.events.EmitForUser(events.ProviderConnectionAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"provider_id":   cmd.ProviderID,
		"provider_slug": cmd.ProviderSlug,
	})

	if len(cmd.Credentials) == 0 {
		return "", c.fail(events.ProviderConnectionFailed, cmd.UserID,
			domain.E(domain.CodeInvalidCredentials, "credentials are required"),
			map[string]interface{}{"provider_id": cmd.ProviderID})
	}

	sealed, err := c.cipher.Encrypt(cmd.Credentials)
	if err != nil {
		return "", c.fail(events.ProviderConnectionFailed, cmd.UserID,
			domain.Wrap(domain.CodeInvalidCredentials, "failed to seal credentials", err),
			map[string]interface{}{"provider_id": cmd.ProviderID})
	}
	creds := domain.NewCredentials(cmd.CredentialType, sealed, cmd.ExpiresAt)
	now := c.now().UTC()

	existing, err := c.store.FindByUserAndProvider(ctx, cmd.UserID, cmd.ProviderID)
	if err != nil {
		return "", c.fail(events.ProviderConnectionFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to load connection", err),
			map[string]interface{}{"provider_id": cmd.ProviderID})
	}
	var conn *domain.ProviderConnection
	for _, candidate := range existing {
		if candidate.Status != domain.ConnectionDisconnected {
			conn = candidate
			break
		}
	}

	switch {
	case conn == nil:
		conn, err = domain.NewProviderConnection(cmd.UserID, cmd.ProviderID, cmd.ProviderSlug, cmd.Alias, now)
		if err == nil {
			err = conn.MarkConnected(&creds, now)
		}
	case conn.Status == domain.ConnectionActive:
		err = conn.UpdateCredentials(&creds, now)
	default:
		err = conn.MarkConnected(&creds, now)
	}
	if err != nil {
		return "", c.fail(events.ProviderConnectionFailed, cmd.UserID, err,
			map[string]interface{}{"provider_id": cmd.ProviderID})
	}

	if err := c.store.Save(ctx, conn); err != nil {
		return "", c.fail(events.ProviderConnectionFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to save connection", err),
			map[string]interface{}{"provider_id": cmd.ProviderID})
	}

	c.events.EmitForUser(events.ProviderConnectionSucceeded, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": conn.ID,
		"provider_id":   conn.ProviderID,
		"provider_slug": conn.ProviderSlug,
	})
	c.log.Info().Str("connection_id", conn.ID).Str("provider_slug", conn.ProviderSlug).Msg("provider connected")
	return conn.ID, nil
}

// DisconnectProviderCommand carries the input for DisconnectProvider.
type DisconnectProviderCommand struct {
	UserID       string
	ConnectionID string
}

// DisconnectProvider moves a connection to its terminal DISCONNECTED state
// and clears its credentials. The Attempted event omits the provider id when
// the connection cannot be resolved yet.
func (c *Commands) DisconnectProvider(ctx context.Context, cmd DisconnectProviderCommand) error {
	c.events.EmitForUser(events.ProviderDisconnectionAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": cmd.ConnectionID,
	})

	conn, err := c.loadOwned(ctx, cmd.ConnectionID, cmd.UserID)
	if err != nil {
		return c.fail(events.ProviderDisconnectionFailed, cmd.UserID, err,
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}

	conn.MarkDisconnected(c.now().UTC())

	if err := c.store.Save(ctx, conn); err != nil {
		return c.fail(events.ProviderDisconnectionFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to save connection", err),
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}

	c.events.EmitForUser(events.ProviderDisconnectionSucceeded, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": conn.ID,
		"provider_id":   conn.ProviderID,
	})
	c.log.Info().Str("connection_id", conn.ID).Msg("provider disconnected")
	return nil
}

// RefreshProviderTokensCommand carries the input for RefreshProviderTokens.
type RefreshProviderTokensCommand struct {
	UserID         string
	ConnectionID   string
	CredentialType domain.CredentialType
	Credentials    crypto.CredentialBundle
	ExpiresAt      *time.Time
}

// RefreshProviderTokens replaces the credentials of an ACTIVE connection.
func (c *Commands) RefreshProviderTokens(ctx context.Context, cmd RefreshProviderTokensCommand) error {
	c.events.EmitForUser(events.ProviderTokenRefreshAttempted, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": cmd.ConnectionID,
	})

	conn, err := c.loadOwned(ctx, cmd.ConnectionID, cmd.UserID)
	if err != nil {
		return c.fail(events.ProviderTokenRefreshFailed, cmd.UserID, err,
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}
	if conn.Status != domain.ConnectionActive {
		return c.fail(events.ProviderTokenRefreshFailed, cmd.UserID,
			domain.Ef(domain.CodeNotActive, "connection is %s, not ACTIVE", conn.Status),
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}

	sealed, err := c.cipher.Encrypt(cmd.Credentials)
	if err != nil {
		return c.fail(events.ProviderTokenRefreshFailed, cmd.UserID,
			domain.Wrap(domain.CodeInvalidCredentials, "failed to seal credentials", err),
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}
	creds := domain.NewCredentials(cmd.CredentialType, sealed, cmd.ExpiresAt)

	if err := conn.UpdateCredentials(&creds, c.now().UTC()); err != nil {
		return c.fail(events.ProviderTokenRefreshFailed, cmd.UserID, err,
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}
	if err := c.store.Save(ctx, conn); err != nil {
		return c.fail(events.ProviderTokenRefreshFailed, cmd.UserID,
			domain.Wrap(domain.CodeDatabaseError, "failed to save connection", err),
			map[string]interface{}{"connection_id": cmd.ConnectionID})
	}

	c.events.EmitForUser(events.ProviderTokenRefreshSucceeded, moduleName, cmd.UserID, map[string]interface{}{
		"connection_id": conn.ID,
	})
	c.log.Info().Str("connection_id", conn.ID).Msg("provider tokens refreshed")
	return nil
}

// UpdateAlias changes the user-facing alias of an owned connection. Cosmetic,
// so no lifecycle events.
func (c *Commands) UpdateAlias(ctx context.Context, userID, connectionID string, alias *string) error {
	conn, err := c.loadOwned(ctx, connectionID, userID)
	if err != nil {
		return err
	}
	conn.SetAlias(alias, c.now().UTC())
	if err := c.store.Save(ctx, conn); err != nil {
		return domain.Wrap(domain.CodeDatabaseError, "failed to save connection", err)
	}
	return nil
}

func (c *Commands) loadOwned(ctx context.Context, connectionID, userID string) (*domain.ProviderConnection, error) {
	conn, err := c.store.FindByID(ctx, connectionID)
	if err != nil {
		return nil, domain.Wrap(domain.CodeDatabaseError, "failed to load connection", err)
	}
	if conn == nil {
		return nil, domain.Ef(domain.CodeConnectionNotFound, "connection %s not found", connectionID)
	}
	if conn.UserID != userID {
		return nil, domain.E(domain.CodeNotOwnedByUser, "connection does not belong to user")
	}
	return conn, nil
}

// fail emits the Failed event with the stable reason code and passes the
// error through.
func (c *Commands) fail(eventType events.EventType, userID string, err error, context map[string]interface{}) error {
	reason := domain.CodeOf(err)
	if reason == "" {
		reason = domain.CodeDatabaseError
	}
	c.events.EmitFailed(eventType, moduleName, userID, reason, context)
	c.log.Warn().Err(err).Str("reason", reason).Msg("connection command failed")
	return err
}
