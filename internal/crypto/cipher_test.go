package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/domain"
)

func testKey(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 32)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(map[byte][]byte{1: testKey(0xAA)}, 1)
	require.NoError(t, err)

	bundle := CredentialBundle{
		"access_token":  "tok-123",
		"refresh_token": "ref-456",
	}

	blob, err := c.Encrypt(bundle)
	require.NoError(t, err)
	assert.Equal(t, byte(1), blob[0])

	got, err := c.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got.String("access_token"))
	assert.Equal(t, "ref-456", got.String("refresh_token"))
}

func TestCipherKeyRotation(t *testing.T) {
	oldCipher, err := NewCipher(map[byte][]byte{1: testKey(0xAA)}, 1)
	require.NoError(t, err)

	blob, err := oldCipher.Encrypt(CredentialBundle{"api_key": "k"})
	require.NoError(t, err)

	// New cipher with a rotated active key still opens old blobs.
	rotated, err := NewCipher(map[byte][]byte{1: testKey(0xAA), 2: testKey(0xBB)}, 2)
	require.NoError(t, err)

	got, err := rotated.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "k", got.String("api_key"))

	fresh, err := rotated.Encrypt(CredentialBundle{"api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, byte(2), fresh[0])
}

func TestCipherTamperDetection(t *testing.T) {
	c, err := NewCipher(map[byte][]byte{1: testKey(0xAA)}, 1)
	require.NoError(t, err)

	blob, err := c.Encrypt(CredentialBundle{"api_key": "k"})
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xFF
	_, err = c.Decrypt(blob)
	assert.Equal(t, domain.CodeCredentialsDecryptionFailed, domain.CodeOf(err))
}

func TestCipherUnknownKeyID(t *testing.T) {
	c, err := NewCipher(map[byte][]byte{1: testKey(0xAA)}, 1)
	require.NoError(t, err)

	blob, err := c.Encrypt(CredentialBundle{"api_key": "k"})
	require.NoError(t, err)

	blob[0] = 9
	_, err = c.Decrypt(blob)
	assert.Equal(t, domain.CodeCredentialsDecryptionFailed, domain.CodeOf(err))
}

func TestCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher(nil, 1)
	assert.Error(t, err)

	_, err = NewCipher(map[byte][]byte{1: []byte("short")}, 1)
	assert.Error(t, err)

	_, err = NewCipher(map[byte][]byte{1: testKey(0xAA)}, 2)
	assert.Error(t, err)
}

func TestCipherShortCiphertext(t *testing.T) {
	c, err := NewCipher(map[byte][]byte{1: testKey(0xAA)}, 1)
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{1})
	assert.Equal(t, domain.CodeCredentialsDecryptionFailed, domain.CodeOf(err))
}

func TestBundleBytes(t *testing.T) {
	b := CredentialBundle{
		"file_content": []byte{0x01, 0x02},
		"file_name":    "export.qfx",
	}
	assert.Equal(t, []byte{0x01, 0x02}, b.Bytes("file_content"))
	assert.Equal(t, []byte("export.qfx"), b.Bytes("file_name"))
	assert.Nil(t, b.Bytes("missing"))
}
