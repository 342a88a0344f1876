// Package ratelimit implements the static endpoint rule registry and an
// in-process token bucket. The limiter is an optimization layer, never
// authoritative: internal failures fail open.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scope selects the key a rule buckets by.
type Scope string

const (
	ScopeIP           Scope = "IP"
	ScopeUser         Scope = "USER"
	ScopeUserProvider Scope = "USER_PROVIDER"
	ScopeGlobal       Scope = "GLOBAL"
)

// Rule is one endpoint's rate limit configuration.
type Rule struct {
	MaxTokens           int
	RefillRatePerMinute float64
	Scope               Scope
	Cost                int
	Enabled             bool
}

// Registry maps "METHOD /path/pattern" endpoint keys to rules. Patterns may
// contain "*" segments that match exactly one path segment. The registry is
// read-only after construction.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry validates and builds a rule registry. Every rule must carry
// positive max tokens, refill rate and cost, and a known scope.
func NewRegistry(rules map[string]Rule) (*Registry, error) {
	for endpoint, rule := range rules {
		if rule.MaxTokens <= 0 {
			return nil, fmt.Errorf("rule %q: max tokens must be positive, got %d", endpoint, rule.MaxTokens)
		}
		if rule.RefillRatePerMinute <= 0 {
			return nil, fmt.Errorf("rule %q: refill rate must be positive, got %g", endpoint, rule.RefillRatePerMinute)
		}
		if rule.Cost <= 0 {
			return nil, fmt.Errorf("rule %q: cost must be positive, got %d", endpoint, rule.Cost)
		}
		switch rule.Scope {
		case ScopeIP, ScopeUser, ScopeUserProvider, ScopeGlobal:
		default:
			return nil, fmt.Errorf("rule %q: unknown scope %q", endpoint, rule.Scope)
		}
		if !strings.Contains(endpoint, " ") {
			return nil, fmt.Errorf("rule key %q: want \"METHOD /path\"", endpoint)
		}
	}
	copied := make(map[string]Rule, len(rules))
	for k, v := range rules {
		copied[k] = v
	}
	return &Registry{rules: copied}, nil
}

// RuleForEndpoint returns the rule matching a method and path, preferring an
// exact match over wildcard patterns. Returns nil when no rule applies.
func (r *Registry) RuleForEndpoint(method, path string) *Rule {
	key := method + " " + path
	if rule, ok := r.rules[key]; ok {
		return &rule
	}
	for endpoint, rule := range r.rules {
		em, ep, ok := strings.Cut(endpoint, " ")
		if !ok || em != method {
			continue
		}
		if matchPattern(ep, path) {
			matched := rule
			return &matched
		}
	}
	return nil
}

// matchPattern matches a path against a pattern where "*" stands for exactly
// one segment.
func matchPattern(pattern, path string) bool {
	pp := strings.Split(strings.Trim(pattern, "/"), "/")
	sp := strings.Split(strings.Trim(path, "/"), "/")
	if len(pp) != len(sp) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != sp[i] {
			return false
		}
	}
	return true
}

// KeyFor derives the bucket key for a rule from the request identity.
func KeyFor(rule Rule, ip, userID, providerSlug string) string {
	switch rule.Scope {
	case ScopeIP:
		return "ip:" + ip
	case ScopeUser:
		return "user:" + userID
	case ScopeUserProvider:
		return "user:" + userID + ":provider:" + providerSlug
	default:
		return "global"
	}
}

// Decision is the outcome of one consume attempt.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds float64
	Remaining         int
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is an in-process atomic token bucket keyed by derived rule keys.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	log     zerolog.Logger
}

// NewLimiter creates a token bucket limiter.
func NewLimiter(log zerolog.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		log:     log.With().Str("component", "ratelimit").Logger(),
	}
}

// CheckAndConsume attempts to take cost tokens from the key's bucket. Buckets
// start full and refill continuously at the rule's per-minute rate. Disabled
// rules always allow.
func (l *Limiter) CheckAndConsume(key string, rule Rule, cost int) Decision {
	if !rule.Enabled {
		return Decision{Allowed: true, Remaining: rule.MaxTokens}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rule.MaxTokens), last: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * rule.RefillRatePerMinute / 60
		if b.tokens > float64(rule.MaxTokens) {
			b.tokens = float64(rule.MaxTokens)
		}
		b.last = now
	}

	if b.tokens < float64(cost) {
		retryAfter := (float64(cost) - b.tokens) * 60 / rule.RefillRatePerMinute
		return Decision{Allowed: false, RetryAfterSeconds: retryAfter, Remaining: int(b.tokens)}
	}
	b.tokens -= float64(cost)
	return Decision{Allowed: true, Remaining: int(b.tokens)}
}
