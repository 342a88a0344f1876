// Package di provides dependency injection wiring and initialization.
package di

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aggregator/internal/config"
	"github.com/aristath/aggregator/internal/crypto"
	"github.com/aristath/aggregator/internal/database"
	"github.com/aristath/aggregator/internal/events"
	"github.com/aristath/aggregator/internal/modules/accounts"
	"github.com/aristath/aggregator/internal/modules/connections"
	"github.com/aristath/aggregator/internal/modules/holdings"
	"github.com/aristath/aggregator/internal/modules/snapshots"
	syncmod "github.com/aristath/aggregator/internal/modules/sync"
	"github.com/aristath/aggregator/internal/modules/transactions"
	"github.com/aristath/aggregator/internal/ownership"
	"github.com/aristath/aggregator/internal/providers"
	"github.com/aristath/aggregator/internal/providers/fileimport"
	"github.com/aristath/aggregator/internal/providers/schwab"
	"github.com/aristath/aggregator/internal/providers/tradernet"
	"github.com/aristath/aggregator/internal/ratelimit"
	"github.com/aristath/aggregator/internal/scheduler"
	"github.com/aristath/aggregator/internal/server"
)

// credentialExpiryWindow is how far ahead the daily scan looks for expiring
// connection credentials.
const credentialExpiryWindow = 72 * time.Hour

// Container holds all application dependencies. It is created by Wire and is
// the single source of truth for service instances.
type Container struct {
	// Databases. The aggregator store holds durable entities; the cache
	// store holds ephemeral connection cache rows.
	AggregatorDB *database.DB
	CacheDB      *database.DB

	// Credential encryption
	Cipher *crypto.Cipher

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	ConnectionRepo  *connections.Repository
	ConnectionCache *connections.Cache
	Connections     *connections.CachedRepository
	AccountRepo     *accounts.Repository
	HoldingRepo     *holdings.Repository
	TransactionRepo *transactions.Repository
	SnapshotRepo    *snapshots.Repository

	// Authorization
	Ownership *ownership.Verifier

	// Provider adapters
	Registry *providers.Registry

	// Commands and queries
	ConnectionCommands *connections.Commands
	ConnectionQueries  *connections.Queries
	AccountQueries     *accounts.Queries
	HoldingQueries     *holdings.Queries
	TransactionQueries *transactions.Queries
	SnapshotQueries    *snapshots.Queries
	SyncHandler        *syncmod.Handler

	// HTTP
	Server *server.Server

	// Background maintenance
	Scheduler *scheduler.Scheduler
}

// Wire initializes all dependencies in order: databases, crypto, events,
// repositories, adapters, services, HTTP server and scheduler jobs.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	if err := initDatabases(c, cfg, log); err != nil {
		return nil, err
	}

	keys, err := decodeCredentialKeys(cfg.CredentialKeys)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to decode credential keys: %w", err)
	}
	c.Cipher, err = crypto.NewCipher(keys, cfg.ActiveKeyID)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	c.EventBus = events.NewBus(log)
	c.EventManager = events.NewManager(c.EventBus, log)

	initRepositories(c, cfg, log)

	c.Ownership = ownership.NewVerifier(c.Connections, c.AccountRepo, c.HoldingRepo, c.TransactionRepo, log)

	c.Registry = providers.NewRegistry()
	c.Registry.Register("tradernet", tradernet.New(cfg.TradernetBaseURL, log))
	c.Registry.Register("schwab", schwab.New(cfg.SchwabBaseURL, log))
	c.Registry.Register("file_import", fileimport.New(log))

	initServices(c, log)

	if err := initServer(c, cfg, log); err != nil {
		c.Close()
		return nil, err
	}

	if err := initScheduler(c, log); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().Msg("dependency wiring completed")
	return c, nil
}

// Close releases the container's resources in reverse dependency order.
func (c *Container) Close() {
	if c.EventBus != nil {
		c.EventBus.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
	if c.AggregatorDB != nil {
		c.AggregatorDB.Close()
	}
}

func initDatabases(c *Container, cfg *config.Config, log zerolog.Logger) error {
	var err error
	c.AggregatorDB, err = database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "aggregator.db"),
		Profile: database.ProfileStandard,
		Name:    "aggregator",
	})
	if err != nil {
		return fmt.Errorf("failed to open aggregator database: %w", err)
	}

	c.CacheDB, err = database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := c.AggregatorDB.Migrate(); err != nil {
		c.Close()
		return fmt.Errorf("failed to migrate aggregator database: %w", err)
	}
	if err := c.CacheDB.Migrate(); err != nil {
		c.Close()
		return fmt.Errorf("failed to migrate cache database: %w", err)
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("databases initialized")
	return nil
}

func initRepositories(c *Container, cfg *config.Config, log zerolog.Logger) {
	c.ConnectionRepo = connections.NewRepository(c.AggregatorDB.Conn(), log)
	c.ConnectionCache = connections.NewCache(c.CacheDB.Conn(), cfg.CacheProviderTTL, log)
	c.Connections = connections.NewCachedRepository(c.ConnectionRepo, c.ConnectionCache)
	c.AccountRepo = accounts.NewRepository(c.AggregatorDB.Conn(), log)
	c.HoldingRepo = holdings.NewRepository(c.AggregatorDB.Conn(), log)
	c.TransactionRepo = transactions.NewRepository(c.AggregatorDB.Conn(), log)
	c.SnapshotRepo = snapshots.NewRepository(c.AggregatorDB.Conn(), log)
}

func initServices(c *Container, log zerolog.Logger) {
	c.ConnectionCommands = connections.NewCommands(c.Connections, c.Cipher, c.EventManager, log)
	c.ConnectionQueries = connections.NewQueries(c.Connections, log)
	c.AccountQueries = accounts.NewQueries(c.AccountRepo, c.Ownership, log)
	c.HoldingQueries = holdings.NewQueries(c.HoldingRepo, c.Ownership, log)
	c.TransactionQueries = transactions.NewQueries(c.TransactionRepo, c.Ownership, log)
	c.SnapshotQueries = snapshots.NewQueries(c.SnapshotRepo, c.Ownership, log)

	c.SyncHandler = syncmod.NewHandler(
		c.Connections, c.AccountRepo, c.HoldingRepo, c.TransactionRepo, c.SnapshotRepo,
		c.Registry, c.Cipher, c.EventManager, log,
	)
}

func initServer(c *Container, cfg *config.Config, log zerolog.Logger) error {
	rules, err := ratelimit.NewRegistry(server.DefaultRateLimitRules())
	if err != nil {
		return fmt.Errorf("failed to build rate limit rules: %w", err)
	}

	c.Server = server.New(server.Config{
		Port:         cfg.Port,
		Log:          log,
		Cfg:          cfg,
		AggregatorDB: c.AggregatorDB,
		CacheDB:      c.CacheDB,

		Connections:  connections.NewHandler(c.ConnectionCommands, c.ConnectionQueries, c.Registry, log),
		Accounts:     accounts.NewHandler(c.AccountQueries, log),
		Holdings:     holdings.NewHandler(c.HoldingQueries, log),
		Transactions: transactions.NewHandler(c.TransactionQueries, log),
		Snapshots:    snapshots.NewHandler(c.SnapshotQueries, log),
		Sync:         syncmod.NewHTTPHandler(c.SyncHandler, log),

		RateLimitRules: rules,
		RateLimiter:    ratelimit.NewLimiter(log),
	})
	return nil
}

func initScheduler(c *Container, log zerolog.Logger) error {
	c.Scheduler = scheduler.New(log)

	if err := c.Scheduler.AddJob("@hourly", scheduler.NewCheckpointJob(log, c.AggregatorDB, c.CacheDB)); err != nil {
		return fmt.Errorf("failed to register checkpoint job: %w", err)
	}
	if err := c.Scheduler.AddJob("0 */5 * * * *", scheduler.NewCachePurgeJob(c.ConnectionCache, log)); err != nil {
		return fmt.Errorf("failed to register cache purge job: %w", err)
	}
	if err := c.Scheduler.AddJob("0 0 6 * * *",
		scheduler.NewCredentialExpiryJob(c.ConnectionRepo, c.EventManager, credentialExpiryWindow, log)); err != nil {
		return fmt.Errorf("failed to register credential expiry job: %w", err)
	}
	return nil
}

// decodeCredentialKeys turns the hex-encoded key ring from the environment
// into raw AES keys.
func decodeCredentialKeys(encoded map[byte]string) (map[byte][]byte, error) {
	keys := make(map[byte][]byte, len(encoded))
	for id, hexKey := range encoded {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("credential key %d is not valid hex: %w", id, err)
		}
		keys[id] = key
	}
	return keys, nil
}
