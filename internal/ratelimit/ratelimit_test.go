package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() Rule {
	return Rule{MaxTokens: 10, RefillRatePerMinute: 60, Scope: ScopeUser, Cost: 1, Enabled: true}
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(map[string]Rule{"POST /api/sync": validRule()})
	require.NoError(t, err)

	bad := validRule()
	bad.MaxTokens = 0
	_, err = NewRegistry(map[string]Rule{"POST /api/sync": bad})
	assert.Error(t, err)

	bad = validRule()
	bad.RefillRatePerMinute = -1
	_, err = NewRegistry(map[string]Rule{"POST /api/sync": bad})
	assert.Error(t, err)

	bad = validRule()
	bad.Cost = 0
	_, err = NewRegistry(map[string]Rule{"POST /api/sync": bad})
	assert.Error(t, err)

	bad = validRule()
	bad.Scope = "NEIGHBORHOOD"
	_, err = NewRegistry(map[string]Rule{"POST /api/sync": bad})
	assert.Error(t, err)

	_, err = NewRegistry(map[string]Rule{"no-method-here": validRule()})
	assert.Error(t, err)
}

func TestRuleForEndpointMatching(t *testing.T) {
	exact := validRule()
	wild := validRule()
	wild.MaxTokens = 5

	reg, err := NewRegistry(map[string]Rule{
		"POST /api/providers/connect":  exact,
		"POST /api/connections/*/sync": wild,
	})
	require.NoError(t, err)

	got := reg.RuleForEndpoint("POST", "/api/providers/connect")
	require.NotNil(t, got)
	assert.Equal(t, 10, got.MaxTokens)

	got = reg.RuleForEndpoint("POST", "/api/connections/abc-123/sync")
	require.NotNil(t, got)
	assert.Equal(t, 5, got.MaxTokens)

	// Wildcard matches exactly one segment.
	assert.Nil(t, reg.RuleForEndpoint("POST", "/api/connections/a/b/sync"))
	assert.Nil(t, reg.RuleForEndpoint("GET", "/api/providers/connect"))
	assert.Nil(t, reg.RuleForEndpoint("POST", "/api/unknown"))
}

func TestKeyForScopes(t *testing.T) {
	rule := validRule()

	rule.Scope = ScopeIP
	assert.Equal(t, "ip:10.0.0.1", KeyFor(rule, "10.0.0.1", "user-1", "schwab"))
	rule.Scope = ScopeUser
	assert.Equal(t, "user:user-1", KeyFor(rule, "10.0.0.1", "user-1", "schwab"))
	rule.Scope = ScopeUserProvider
	assert.Equal(t, "user:user-1:provider:schwab", KeyFor(rule, "10.0.0.1", "user-1", "schwab"))
	rule.Scope = ScopeGlobal
	assert.Equal(t, "global", KeyFor(rule, "10.0.0.1", "user-1", "schwab"))
}

func TestCheckAndConsumeExhaustion(t *testing.T) {
	l := NewLimiter(zerolog.Nop())
	base := time.Now()
	l.now = func() time.Time { return base }

	rule := Rule{MaxTokens: 3, RefillRatePerMinute: 6, Scope: ScopeUser, Cost: 1, Enabled: true}

	for i := 0; i < 3; i++ {
		d := l.CheckAndConsume("user:u1", rule, 1)
		require.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	denied := l.CheckAndConsume("user:u1", rule, 1)
	require.False(t, denied.Allowed)
	assert.InDelta(t, 10.0, denied.RetryAfterSeconds, 0.01)
	assert.Equal(t, 0, denied.Remaining)

	// After waiting 60/refill seconds exactly one more consume is allowed.
	base = base.Add(10 * time.Second)
	d := l.CheckAndConsume("user:u1", rule, 1)
	assert.True(t, d.Allowed)
	d = l.CheckAndConsume("user:u1", rule, 1)
	assert.False(t, d.Allowed)
}

func TestCheckAndConsumeRefillCapsAtMax(t *testing.T) {
	l := NewLimiter(zerolog.Nop())
	base := time.Now()
	l.now = func() time.Time { return base }

	rule := Rule{MaxTokens: 2, RefillRatePerMinute: 60, Scope: ScopeUser, Cost: 1, Enabled: true}

	require.True(t, l.CheckAndConsume("k", rule, 1).Allowed)
	base = base.Add(time.Hour)

	d := l.CheckAndConsume("k", rule, 1)
	require.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestCheckAndConsumeDisabledAndIsolation(t *testing.T) {
	l := NewLimiter(zerolog.Nop())

	off := validRule()
	off.Enabled = false
	for i := 0; i < 100; i++ {
		assert.True(t, l.CheckAndConsume("k", off, 1).Allowed)
	}

	rule := Rule{MaxTokens: 1, RefillRatePerMinute: 1, Scope: ScopeUser, Cost: 1, Enabled: true}
	require.True(t, l.CheckAndConsume("user:a", rule, 1).Allowed)
	assert.False(t, l.CheckAndConsume("user:a", rule, 1).Allowed)
	assert.True(t, l.CheckAndConsume("user:b", rule, 1).Allowed)
}
