package domain

import "time"

// CredentialType tags the shape of an encrypted credential blob.
type CredentialType string

const (
	CredentialOAuth2      CredentialType = "OAUTH2"
	CredentialAPIKey      CredentialType = "API_KEY"
	CredentialLinkToken   CredentialType = "LINK_TOKEN"
	CredentialCertificate CredentialType = "CERTIFICATE"
	CredentialFileImport  CredentialType = "FILE_IMPORT"
	CredentialCustom      CredentialType = "CUSTOM"
)

// Credentials is an opaque encrypted credential container. The core never
// interprets the ciphertext; only the cipher can open it. Never logged,
// never exposed across boundaries.
type Credentials struct {
	Type      CredentialType
	Encrypted []byte
	ExpiresAt *time.Time // nil = no known expiry
}

// NewCredentials creates an encrypted credential container.
func NewCredentials(credType CredentialType, encrypted []byte, expiresAt *time.Time) Credentials {
	return Credentials{Type: credType, Encrypted: encrypted, ExpiresAt: expiresAt}
}

// IsExpired reports whether the credentials are past their expiry.
// Credentials without an expiry never expire.
func (c Credentials) IsExpired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// IsExpiringSoon reports whether the credentials expire within the threshold.
func (c Credentials) IsExpiringSoon(now time.Time, threshold time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.Add(threshold).After(*c.ExpiresAt)
}

// SupportsRefresh reports whether this credential kind can be refreshed
// without user interaction.
func (c Credentials) SupportsRefresh() bool {
	return c.Type == CredentialOAuth2 || c.Type == CredentialLinkToken
}
