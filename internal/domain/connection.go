package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "PENDING"
	ConnectionActive       ConnectionStatus = "ACTIVE"
	ConnectionExpired      ConnectionStatus = "EXPIRED"
	ConnectionRevoked      ConnectionStatus = "REVOKED"
	ConnectionFailed       ConnectionStatus = "FAILED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
)

// ProviderConnection is one user's relationship with one provider instance.
// It carries the encrypted credentials and drives the sync state machine:
//
//	PENDING -> {ACTIVE, FAILED}
//	{EXPIRED, REVOKED, FAILED} -> ACTIVE (re-auth)
//	ACTIVE -> {EXPIRED, REVOKED}
//	any -> DISCONNECTED (terminal)
//
// Connections are never hard-deleted; DISCONNECTED preserves the audit trail.
type ProviderConnection struct {
	ID           string
	UserID       string
	ProviderID   string
	ProviderSlug string
	Alias        *string
	Status       ConnectionStatus
	Credentials  *Credentials
	ConnectedAt  *time.Time
	LastSyncAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProviderConnection creates a PENDING connection. Slug length must be
// 1-50, alias length at most 100; violations are construction failures.
func NewProviderConnection(userID, providerID, providerSlug string, alias *string, now time.Time) (*ProviderConnection, error) {
	slug := strings.TrimSpace(providerSlug)
	if len(slug) < 1 || len(slug) > 50 {
		return nil, Ef(CodeInvalidProviderSlug, "slug length must be 1-50, got %d", len(slug))
	}
	if alias != nil && len(*alias) > 100 {
		return nil, Ef(CodeInvalidProviderSlug, "alias length must be <=100, got %d", len(*alias))
	}

	return &ProviderConnection{
		ID:           uuid.NewString(),
		UserID:       userID,
		ProviderID:   providerID,
		ProviderSlug: slug,
		Alias:        alias,
		Status:       ConnectionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsConnected reports whether the connection is ACTIVE with credentials.
func (c *ProviderConnection) IsConnected() bool {
	return c.Status == ConnectionActive && c.Credentials != nil
}

// CanSync reports whether a sync may run right now.
func (c *ProviderConnection) CanSync(now time.Time) bool {
	return c.IsConnected() && !c.Credentials.IsExpired(now)
}

// NeedsReauthentication reports whether the user must re-authenticate.
func (c *ProviderConnection) NeedsReauthentication() bool {
	return c.Status == ConnectionExpired || c.Status == ConnectionRevoked || c.Status == ConnectionFailed
}

// MarkConnected transitions to ACTIVE with the given credentials. Allowed
// from PENDING and from the re-auth states (EXPIRED, REVOKED, FAILED).
// connected_at is set only on the first successful connection.
func (c *ProviderConnection) MarkConnected(creds *Credentials, now time.Time) error {
	if creds == nil {
		return E(CodeCredentialsRequired, "credentials are required to connect")
	}
	switch c.Status {
	case ConnectionPending, ConnectionExpired, ConnectionRevoked, ConnectionFailed:
		// allowed
	default:
		return Ef(CodeCannotTransitionToActive, "cannot activate connection in status %s", c.Status)
	}

	c.Status = ConnectionActive
	c.Credentials = creds
	if c.ConnectedAt == nil {
		t := now
		c.ConnectedAt = &t
	}
	c.UpdatedAt = now
	return nil
}

// MarkDisconnected transitions to the terminal DISCONNECTED state and clears
// credentials. Allowed from any state; never fails.
func (c *ProviderConnection) MarkDisconnected(now time.Time) {
	c.Status = ConnectionDisconnected
	c.Credentials = nil
	c.UpdatedAt = now
}

// MarkExpired transitions ACTIVE -> EXPIRED. Credentials are retained: they
// may still hold a usable refresh token.
func (c *ProviderConnection) MarkExpired(now time.Time) error {
	if c.Status != ConnectionActive {
		return Ef(CodeCannotTransitionToExpired, "cannot expire connection in status %s", c.Status)
	}
	c.Status = ConnectionExpired
	c.UpdatedAt = now
	return nil
}

// MarkRevoked transitions ACTIVE -> REVOKED. Credentials are retained.
func (c *ProviderConnection) MarkRevoked(now time.Time) error {
	if c.Status != ConnectionActive {
		return Ef(CodeCannotTransitionToRevoked, "cannot revoke connection in status %s", c.Status)
	}
	c.Status = ConnectionRevoked
	c.UpdatedAt = now
	return nil
}

// MarkFailed transitions PENDING -> FAILED.
func (c *ProviderConnection) MarkFailed(now time.Time) error {
	if c.Status != ConnectionPending {
		return Ef(CodeCannotTransitionToFailed, "cannot fail connection in status %s", c.Status)
	}
	c.Status = ConnectionFailed
	c.UpdatedAt = now
	return nil
}

// UpdateCredentials replaces the credentials of an ACTIVE connection.
func (c *ProviderConnection) UpdateCredentials(creds *Credentials, now time.Time) error {
	if c.Status != ConnectionActive {
		return Ef(CodeNotConnected, "connection is %s, not ACTIVE", c.Status)
	}
	if creds == nil {
		return E(CodeCredentialsRequired, "credentials are required")
	}
	c.Credentials = creds
	c.UpdatedAt = now
	return nil
}

// SetAlias replaces the user-facing alias. A nil alias clears it.
func (c *ProviderConnection) SetAlias(alias *string, now time.Time) {
	c.Alias = alias
	c.UpdatedAt = now
}

// RecordSync stamps last_sync_at on an ACTIVE connection.
func (c *ProviderConnection) RecordSync(now time.Time) error {
	if c.Status != ConnectionActive {
		return Ef(CodeNotConnected, "connection is %s, not ACTIVE", c.Status)
	}
	t := now
	c.LastSyncAt = &t
	c.UpdatedAt = now
	return nil
}
