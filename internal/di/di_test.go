package di

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/config"
)

func wireConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:  t.TempDir(),
		Port:     0,
		LogLevel: "error",

		CredentialKeys: map[byte]string{1: strings.Repeat("ab", 32)},
		ActiveKeyID:    1,

		MinSyncInterval:   5 * time.Minute,
		DefaultSyncWindow: 30 * 24 * time.Hour,
		ProviderTimeout:   30 * time.Second,
		CacheProviderTTL:  300 * time.Second,

		TradernetBaseURL: "https://tradernet.example",
		SchwabBaseURL:    "https://schwab.example",
	}
}

func TestWireBuildsFullContainer(t *testing.T) {
	c, err := Wire(wireConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.AggregatorDB)
	assert.NotNil(t, c.CacheDB)
	assert.NotNil(t, c.Cipher)
	assert.NotNil(t, c.EventBus)
	assert.NotNil(t, c.EventManager)
	assert.NotNil(t, c.Connections)
	assert.NotNil(t, c.Ownership)
	assert.NotNil(t, c.ConnectionCommands)
	assert.NotNil(t, c.SyncHandler)
	assert.NotNil(t, c.Server)
	assert.NotNil(t, c.Scheduler)

	assert.ElementsMatch(t, []string{"tradernet", "schwab", "file_import"}, c.Registry.ListSupported())
}

func TestWireRejectsBadCredentialKey(t *testing.T) {
	cfg := wireConfig(t)
	cfg.CredentialKeys = map[byte]string{1: "not-hex"}

	c, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, c)
}

func TestWireRejectsShortCredentialKey(t *testing.T) {
	cfg := wireConfig(t)
	cfg.CredentialKeys = map[byte]string{1: "abcd"}

	c, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, c)
}
