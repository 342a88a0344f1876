package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aristath/aggregator/internal/domain"
)

// Cipher encrypts credential bundles with AES-256-GCM. The first ciphertext
// byte is a key identifier so keys can rotate: new blobs are sealed with the
// active key while old blobs remain decryptable as long as their key stays
// in the ring.
//
// Wire format: key_id (1 byte) || nonce (12 bytes) || GCM ciphertext.
type Cipher struct {
	keys     map[byte]cipher.AEAD
	activeID byte
}

// NewCipher builds a cipher from a key ring. Keys are raw 32-byte AES-256
// keys indexed by their rotation id; activeID selects the sealing key.
func NewCipher(keys map[byte][]byte, activeID byte) (*Cipher, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one credential key is required")
	}

	ring := make(map[byte]cipher.AEAD, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("credential key %d must be 32 bytes, got %d", id, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key %d: %w", id, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCM for key %d: %w", id, err)
		}
		ring[id] = aead
	}

	if _, ok := ring[activeID]; !ok {
		return nil, fmt.Errorf("active key id %d not present in key ring", activeID)
	}

	return &Cipher{keys: ring, activeID: activeID}, nil
}

// Encrypt seals a credential bundle with the active key.
func (c *Cipher) Encrypt(bundle CredentialBundle) ([]byte, error) {
	plaintext, err := encodeBundle(bundle)
	if err != nil {
		return nil, err
	}

	aead := c.keys[c.activeID]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, c.activeID)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt opens a sealed blob using the key identified by its first byte.
// Failures surface as CREDENTIALS_DECRYPTION_FAILED; the detail never
// includes key material.
func (c *Cipher) Decrypt(blob []byte) (CredentialBundle, error) {
	if len(blob) < 2 {
		return nil, domain.E(domain.CodeCredentialsDecryptionFailed, "ciphertext too short")
	}

	keyID := blob[0]
	aead, ok := c.keys[keyID]
	if !ok {
		return nil, domain.Ef(domain.CodeCredentialsDecryptionFailed, "unknown key id %d", keyID)
	}

	rest := blob[1:]
	if len(rest) < aead.NonceSize() {
		return nil, domain.E(domain.CodeCredentialsDecryptionFailed, "ciphertext too short")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, domain.Wrap(domain.CodeCredentialsDecryptionFailed, "authentication failed", err)
	}

	return decodeBundle(plaintext)
}

// ActiveKeyID returns the id of the sealing key.
func (c *Cipher) ActiveKeyID() byte {
	return c.activeID
}
