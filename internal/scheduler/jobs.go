package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/domain"
	"github.com/aristath/aggregator/internal/events"
)

// jobTimeout bounds each maintenance run.
const jobTimeout = 30 * time.Second

type walCheckpointer interface {
	Name() string
	WALCheckpoint(mode string) error
}

type cachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type expiringConnectionFinder interface {
	FindExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*domain.ProviderConnection, error)
}

type eventEmitter interface {
	EmitForUser(eventType events.EventType, module, userID string, data map[string]interface{})
}

// CheckpointJob truncates the WAL of each database so long-running writers
// do not let the log grow unbounded.
type CheckpointJob struct {
	databases []walCheckpointer
	log       zerolog.Logger
}

// NewCheckpointJob creates a WAL checkpoint job over the given databases.
func NewCheckpointJob(log zerolog.Logger, databases ...walCheckpointer) *CheckpointJob {
	return &CheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

func (j *CheckpointJob) Name() string { return "wal_checkpoint" }

func (j *CheckpointJob) Run() error {
	var firstErr error
	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to checkpoint %s: %w", db.Name(), err)
			}
			continue
		}
		j.log.Debug().Str("database", db.Name()).Msg("WAL checkpoint complete")
	}
	return firstErr
}

// CachePurgeJob deletes expired connection cache entries.
type CachePurgeJob struct {
	cache cachePurger
	log   zerolog.Logger
}

// NewCachePurgeJob creates a cache purge job.
func NewCachePurgeJob(cache cachePurger, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache: cache,
		log:   log.With().Str("job", "cache_purge").Logger(),
	}
}

func (j *CachePurgeJob) Name() string { return "cache_purge" }

func (j *CachePurgeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	purged, err := j.cache.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	if purged > 0 {
		j.log.Info().Int64("purged", purged).Msg("purged expired cache entries")
	}
	return nil
}

// CredentialExpiryJob scans for connections whose credentials expire within
// the warning window and emits a CREDENTIALS_EXPIRING_SOON event per
// connection so users can reauthenticate before syncs start failing.
type CredentialExpiryJob struct {
	connections expiringConnectionFinder
	events      eventEmitter
	window      time.Duration
	log         zerolog.Logger
}

// NewCredentialExpiryJob creates a credential expiry scan with the given
// warning window.
func NewCredentialExpiryJob(connections expiringConnectionFinder, emitter eventEmitter, window time.Duration, log zerolog.Logger) *CredentialExpiryJob {
	return &CredentialExpiryJob{
		connections: connections,
		events:      emitter,
		window:      window,
		log:         log.With().Str("job", "credential_expiry").Logger(),
	}
}

func (j *CredentialExpiryJob) Name() string { return "credential_expiry" }

func (j *CredentialExpiryJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	now := time.Now().UTC()
	expiring, err := j.connections.FindExpiringSoon(ctx, now, j.window)
	if err != nil {
		return fmt.Errorf("failed to find expiring connections: %w", err)
	}

	for _, conn := range expiring {
		if conn.Credentials == nil || conn.Credentials.ExpiresAt == nil {
			continue
		}
		expiresAt := conn.Credentials.ExpiresAt.UTC()

		j.log.Warn().
			Str("connection_id", conn.ID).
			Str("provider_slug", conn.ProviderSlug).
			Time("expires_at", expiresAt).
			Msg("connection credentials expiring soon")

		j.events.EmitForUser(events.CredentialsExpiringSoon, "connections", conn.UserID, map[string]interface{}{
			"connection_id": conn.ID,
			"provider_slug": conn.ProviderSlug,
			"expires_at":    expiresAt.Format(time.RFC3339),
		})
	}
	return nil
}
