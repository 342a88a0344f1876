// Package sync implements the blocking sync workflows that pull provider
// data into the local store: accounts, holdings, transactions and file
// imports. Every workflow emits an Attempted event up front and exactly one
// of Succeeded or Failed before returning.
package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
	"github.com/aristath/aggregator/internal/providers"
)

const moduleName = "sync"

// minSyncInterval is the core-level floor between non-forced syncs of the
// same connection or account. It is not a provider rate limit.
const minSyncInterval = 5 * time.Minute

type connectionStore interface {
	FindByID(ctx context.Context, id string) (*domain.ProviderConnection, error)
	FindByUserAndSlug(ctx context.Context, userID, slug string) ([]*domain.ProviderConnection, error)
	Save(ctx context.Context, conn *domain.ProviderConnection) error
}

type accountStore interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByConnectionID(ctx context.Context, connectionID string, activeOnly bool) ([]*domain.Account, error)
	FindByProviderAccountID(ctx context.Context, connectionID, providerAccountID string) (*domain.Account, error)
	Save(ctx context.Context, acct *domain.Account) error
}

type holdingStore interface {
	FindByProviderHoldingID(ctx context.Context, accountID, providerHoldingID string) (*domain.Holding, error)
	ListByAccount(ctx context.Context, accountID string, activeOnly bool) ([]*domain.Holding, error)
	Save(ctx context.Context, h *domain.Holding) error
}

type transactionStore interface {
	FindByProviderTransactionID(ctx context.Context, accountID, providerTransactionID string) (*domain.Transaction, error)
	Save(ctx context.Context, txn *domain.Transaction) error
}

type snapshotStore interface {
	Save(ctx context.Context, snap *domain.BalanceSnapshot) error
}

type adapterRegistry interface {
	Get(slug string) (providers.Adapter, error)
}

// Result summarizes one sync run. Total covers every record the provider
// returned, whether it was created, updated, skipped or errored.
type Result struct {
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Unchanged   int    `json:"unchanged"`
	Deactivated int    `json:"deactivated,omitempty"`
	Skipped     int    `json:"skipped,omitempty"`
	Errors      int    `json:"errors"`
	Total       int    `json:"total"`
	Message     string `json:"message,omitempty"`
}

// Handler runs the sync workflows against a provider adapter, persisting the
// normalized results.
type Handler struct {
	connections  connectionStore
	accounts     accountStore
	holdings     holdingStore
	transactions transactionStore
	snapshots    snapshotStore
	registry     adapterRegistry
	cipher       *crypto.Cipher
	events       *events.Manager
	log          zerolog.Logger
	now          func() time.Time
}

// NewHandler creates the sync command handlers.
func NewHandler(
	connections connectionStore,
	accounts accountStore,
	holdings holdingStore,
	transactions transactionStore,
	snapshots snapshotStore,
	registry adapterRegistry,
	cipher *crypto.Cipher,
	em *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		connections:  connections,
		accounts:     accounts,
		holdings:     holdings,
		transactions: transactions,
		snapshots:    snapshots,
		registry:     registry,
		cipher:       cipher,
		events:       em,
		log:          log.With().Str("module", moduleName).Logger(),
		now:          time.Now,
	}
}

// loadSyncTarget loads a connection, checks ownership and verifies it can
// serve a sync right now, then opens its credentials and resolves the
// adapter.
func (h *Handler) loadSyncTarget(ctx context.Context, connectionID, userID string, now time.Time) (*domain.ProviderConnection, crypto.CredentialBundle, providers.Adapter, error) {
	conn, err := h.connections.FindByID(ctx, connectionID)
	if err != nil {
		return nil, nil, nil, domain.Wrap(domain.CodeDatabaseError, "failed to load connection", err)
	}
	if conn == nil {
		return nil, nil, nil, domain.Ef(domain.CodeConnectionNotFound, "connection %s not found", connectionID)
	}
	if conn.UserID != userID {
		return nil, nil, nil, domain.E(domain.CodeNotOwnedByUser, "connection does not belong to user")
	}
	if !conn.IsConnected() {
		return nil, nil, nil, domain.Ef(domain.CodeConnectionNotActive, "connection is %s", conn.Status)
	}
	if conn.Credentials.IsExpired(now) {
		return nil, nil, nil, domain.E(domain.CodeCredentialsInvalid, "credentials are expired")
	}

	bundle, err := h.cipher.Decrypt(conn.Credentials.Encrypted)
	if err != nil {
		return nil, nil, nil, err
	}
	adapter, err := h.registry.Get(conn.ProviderSlug)
	if err != nil {
		return nil, nil, nil, err
	}
	return conn, bundle, adapter, nil
}

// fail emits the Failed event carrying the stable reason code and returns
// the error for the caller's Result.
func (h *Handler) fail(eventType events.EventType, userID string, err error, context map[string]interface{}) error {
	reason := domain.CodeOf(err)
	if reason == "" {
		reason = domain.CodeProviderError
	}
	h.events.EmitFailed(eventType, moduleName, userID, reason, context)
	h.log.Warn().Err(err).Str("reason", reason).Msg("sync failed")
	return err
}

// recentlySynced reports whether the non-forced minimum interval gate blocks
// this run.
func recentlySynced(lastSync *time.Time, now time.Time, force bool) bool {
	return !force && lastSync != nil && now.Sub(*lastSync) < minSyncInterval
}
