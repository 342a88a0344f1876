// Package crypto encrypts and decrypts provider credential bundles.
package crypto

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// CredentialBundle is the decrypted credential payload handed to provider
// adapters. Keys depend on the credential type: OAuth providers carry
// access_token/refresh_token, API-key providers carry api_key/api_secret,
// file imports carry file_content/file_format/file_name.
type CredentialBundle map[string]interface{}

// String returns the value under key as a string, or "" when absent or not
// a string.
func (b CredentialBundle) String(key string) string {
	if v, ok := b[key].(string); ok {
		return v
	}
	return ""
}

// Bytes returns the value under key as raw bytes. msgpack round-trips []byte
// natively; strings are converted.
func (b CredentialBundle) Bytes(key string) []byte {
	switch v := b[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

// encodeBundle serializes a bundle for encryption.
func encodeBundle(bundle CredentialBundle) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]interface{}(bundle))
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential bundle: %w", err)
	}
	return data, nil
}

// decodeBundle deserializes a decrypted bundle.
func decodeBundle(data []byte) (CredentialBundle, error) {
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode credential bundle: %w", err)
	}
	return CredentialBundle(raw), nil
}
