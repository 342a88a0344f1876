package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
)

type fakeCheckpointer struct {
	name  string
	err   error
	calls int
}

func (f *fakeCheckpointer) Name() string { return f.name }

func (f *fakeCheckpointer) WALCheckpoint(mode string) error {
	f.calls++
	return f.err
}

type fakePurger struct {
	purged int64
	err    error
}

func (f *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	return f.purged, f.err
}

type fakeFinder struct {
	connections []*domain.ProviderConnection
	err         error
}

func (f *fakeFinder) FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*domain.ProviderConnection, error) {
	return f.connections, f.err
}

type recordedEvent struct {
	eventType events.EventType
	userID    string
	data      map[string]interface{}
}

type fakeEmitter struct {
	emitted []recordedEvent
}

func (f *fakeEmitter) EmitForUser(eventType events.EventType, module, userID string, data map[string]interface{}) {
	f.emitted = append(f.emitted, recordedEvent{eventType: eventType, userID: userID, data: data})
}

func expiringConnection(t *testing.T, userID string, expiresAt time.Time) *domain.ProviderConnection {
	t.Helper()
	now := time.Now().UTC()
	conn, err := domain.NewProviderConnection(userID, "prov-1", "tradernet", nil, now)
	require.NoError(t, err)
	creds := domain.NewCredentials(domain.CredentialAPIKey, []byte("ciphertext"), &expiresAt)
	conn.Credentials = &creds
	return conn
}

func TestCheckpointJobContinuesAfterFailure(t *testing.T) {
	failing := &fakeCheckpointer{name: "aggregator", err: errors.New("locked")}
	healthy := &fakeCheckpointer{name: "cache"}
	job := NewCheckpointJob(zerolog.Nop(), failing, healthy)

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregator")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestCheckpointJobAllHealthy(t *testing.T) {
	a := &fakeCheckpointer{name: "aggregator"}
	b := &fakeCheckpointer{name: "cache"}
	job := NewCheckpointJob(zerolog.Nop(), a, b)

	require.NoError(t, job.Run())
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestCachePurgeJob(t *testing.T) {
	job := NewCachePurgeJob(&fakePurger{purged: 3}, zerolog.Nop())
	require.NoError(t, job.Run())

	failing := NewCachePurgeJob(&fakePurger{err: errors.New("disk I/O error")}, zerolog.Nop())
	require.Error(t, failing.Run())
}

func TestCredentialExpiryJobEmitsPerConnection(t *testing.T) {
	expiresAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	first := expiringConnection(t, "user-1", expiresAt)
	second := expiringConnection(t, "user-2", expiresAt)

	noCreds, err := domain.NewProviderConnection("user-3", "prov-1", "tradernet", nil, time.Now().UTC())
	require.NoError(t, err)

	finder := &fakeFinder{connections: []*domain.ProviderConnection{first, second, noCreds}}
	emitter := &fakeEmitter{}
	job := NewCredentialExpiryJob(finder, emitter, 72*time.Hour, zerolog.Nop())

	require.NoError(t, job.Run())
	require.Len(t, emitter.emitted, 2)

	assert.Equal(t, events.CredentialsExpiringSoon, emitter.emitted[0].eventType)
	assert.Equal(t, "user-1", emitter.emitted[0].userID)
	assert.Equal(t, first.ID, emitter.emitted[0].data["connection_id"])
	assert.Equal(t, "tradernet", emitter.emitted[0].data["provider_slug"])
	assert.Equal(t, expiresAt.Format(time.RFC3339), emitter.emitted[0].data["expires_at"])
	assert.Equal(t, "user-2", emitter.emitted[1].userID)
}

func TestCredentialExpiryJobPropagatesLookupError(t *testing.T) {
	finder := &fakeFinder{err: errors.New("database is locked")}
	emitter := &fakeEmitter{}
	job := NewCredentialExpiryJob(finder, emitter, 72*time.Hour, zerolog.Nop())

	require.Error(t, job.Run())
	assert.Empty(t, emitter.emitted)
}

func TestSchedulerRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	a := &fakeCheckpointer{name: "aggregator"}
	job := NewCheckpointJob(zerolog.Nop(), a)

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, a.calls)
}
