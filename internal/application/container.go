// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/jbctechsolutions/scribesync/internal/adapters/delivery/httpupload"
	"github.com/jbctechsolutions/scribesync/internal/adapters/network"
	"github.com/jbctechsolutions/scribesync/internal/adapters/sync/sqlite"
	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	"github.com/jbctechsolutions/scribesync/internal/application/syncengine"
	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/config"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/spool"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/storage"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/tracing"
)

// UploadEngine is the sync engine for file uploads.
type UploadEngine = syncengine.Engine[*outbox.Upload]

// Options adjusts how the container is built.
type Options struct {
	ConfigDir string    // Holds the token salt; defaults to ~/.scribesync
	Verbose   bool      // Forces debug logging
	Offline   bool      // Report offline regardless of the network
	LogOutput io.Writer // Defaults to stderr
}

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	config *config.Config
	opts   Options

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer

	// Database connection
	dbConn *sqlite.Connection
	db     *sql.DB

	// Queues and their engines, keyed by queue name
	queues  map[string]*sqlite.Store
	engines map[string]*UploadEngine

	// Sync services
	deliverer   *httpupload.Deliverer
	oracle      ports.NetworkOracle
	probe       *network.ProbeOracle // nil when probing is disabled
	coordinator *syncengine.Coordinator
	history     *storage.CycleHistoryRepository
	recorder    *storage.CycleRecorder
	spool       *spool.Watcher // nil unless spool.enabled

	unsubscribe []func()
	closeOnce   sync.Once
	closeErr    error
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, opts Options) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeConfiguration, "invalid configuration", err)
	}

	c := &Container{
		config:  cfg,
		opts:    opts,
		queues:  make(map[string]*sqlite.Store),
		engines: make(map[string]*UploadEngine),
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initDatabase(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := c.initDelivery(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize delivery: %w", err)
	}

	if err := c.initOracle(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize network oracle: %w", err)
	}

	if err := c.initEngines(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize sync engines: %w", err)
	}

	if c.config.Spool.Enabled {
		if err := c.initSpool(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize spool: %w", err)
		}
	}

	return c, nil
}

// initObservability initializes logging and tracing.
func (c *Container) initObservability() error {
	logLevel := logging.Level(c.config.Logging.Level)
	if c.opts.Verbose {
		logLevel = logging.LevelDebug
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	if c.opts.LogOutput != nil {
		logCfg.Output = c.opts.LogOutput
	}
	c.logger = logging.New(logCfg)

	if !c.config.Tracing.Enabled {
		c.tracer = tracing.Noop()
		return nil
	}

	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterType(c.config.Tracing.ExporterType),
		OTLPEndpoint: c.config.Tracing.OTLPEndpoint,
		ServiceName:  c.config.Tracing.ServiceName,
		Environment:  "production",
		SampleRate:   c.config.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	c.tracer = tracer
	return nil
}

// initDatabase opens the outbox database and creates one store per queue.
func (c *Container) initDatabase() error {
	path, err := config.ExpandPath(c.config.Storage.Path)
	if err != nil {
		return err
	}

	conn, err := sqlite.NewConnection(path)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	c.dbConn = conn

	db, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	c.db = db

	for _, name := range c.config.QueueNames() {
		store, err := sqlite.NewStore(conn, name)
		if err != nil {
			return fmt.Errorf("queue %s: %w", name, err)
		}
		c.queues[name] = store
	}

	c.history = storage.NewCycleHistoryRepository(db)
	c.recorder = storage.NewCycleRecorder(c.history, c.logger)
	return nil
}

// initDelivery builds the HTTP deliverer, decrypting the service token if one is configured.
func (c *Container) initDelivery() error {
	token := ""
	if c.config.Remote.TokenEncrypted != "" {
		dir := c.opts.ConfigDir
		if dir == "" {
			loader, err := config.NewLoader("")
			if err != nil {
				return err
			}
			dir = loader.ConfigDir()
		}
		enc, err := crypto.NewEncryptor(dir)
		if err != nil {
			return err
		}
		token, err = enc.Decrypt(c.config.Remote.TokenEncrypted)
		if err != nil {
			return domainerrors.NewError(domainerrors.CodeConfiguration,
				"could not decrypt remote.token_encrypted; re-run init --token on this machine", err)
		}
	}

	endpoints := make(map[string]string, len(c.config.Queues))
	for name, q := range c.config.Queues {
		endpoints[name] = q.Endpoint
	}

	cfg := httpupload.DefaultConfig()
	cfg.BaseURL = c.config.Remote.BaseURL
	cfg.Endpoints = endpoints
	cfg.Token = token
	cfg.RateLimit = c.config.Remote.MaxUploadRate
	if c.config.Remote.Timeout > 0 {
		cfg.Timeout = c.config.Remote.Timeout
	}

	deliverer, err := httpupload.New(cfg)
	if err != nil {
		return err
	}
	c.deliverer = deliverer
	return nil
}

// initOracle selects the connectivity source: forced offline, always online, or probing.
func (c *Container) initOracle() error {
	switch {
	case c.opts.Offline:
		c.oracle = network.NewStaticOracle(outbox.StatusOffline)
	case c.config.Network.AssumeOnline:
		c.oracle = network.NewStaticOracle(outbox.StatusOnline)
	default:
		probe, err := network.NewProbeOracle(network.ProbeConfig{
			URL:             c.config.ProbeURL(),
			Interval:        c.config.Network.ProbeInterval,
			Timeout:         c.config.Network.ProbeTimeout,
			DegradedLatency: c.config.Network.DegradedLatency,
			Logger:          c.logger,
		})
		if err != nil {
			return err
		}
		c.probe = probe
		c.oracle = probe
	}
	return nil
}

// initEngines creates one engine per queue and registers it with the coordinator.
func (c *Container) initEngines() error {
	c.coordinator = syncengine.NewCoordinator(c.oracle, syncengine.CoordinatorConfig{
		Logger: c.logger,
	})

	for _, name := range c.config.QueueNames() {
		q := c.config.Queues[name]
		quality, err := q.ConnectionQuality()
		if err != nil {
			return fmt.Errorf("queue %s: %w", name, err)
		}

		opts := syncengine.DefaultOptions(name)
		opts.MaxRetries = q.MaxRetries
		opts.RetryDelay = q.RetryDelay
		opts.Concurrency = q.Concurrency
		opts.MinConnectionQuality = quality
		opts.Logger = c.logger
		opts.Tracer = c.tracer

		engine, err := syncengine.NewEngine[*outbox.Upload](c.queues[name], c.deliverer, c.oracle, opts)
		if err != nil {
			return fmt.Errorf("queue %s: %w", name, err)
		}
		c.unsubscribe = append(c.unsubscribe, engine.Subscribe(c.recorder.Listen))

		if err := c.coordinator.Register(engine); err != nil {
			return err
		}
		c.engines[name] = engine
	}
	return nil
}

// initSpool creates the drop-folder watcher over every queue and lets it
// clean up claimed files after each cycle.
func (c *Container) initSpool() error {
	dir, err := config.ExpandPath(c.config.Spool.Directory)
	if err != nil {
		return err
	}

	queues := make(map[string]ports.UploadQueue, len(c.queues))
	for name, store := range c.queues {
		queues[name] = store
	}

	w, err := spool.NewWatcher(spool.Config{
		Directory: dir,
		Debounce:  c.config.Spool.Debounce,
		Logger:    c.logger,
	}, queues)
	if err != nil {
		return err
	}
	c.spool = w

	for _, engine := range c.engines {
		c.unsubscribe = append(c.unsubscribe, engine.Subscribe(w.Listen))
	}
	return nil
}

// Start begins background work: connectivity probing, spool watching and
// periodic syncing. It returns once everything is running.
func (c *Container) Start(ctx context.Context) error {
	if c.probe != nil {
		c.probe.Start(ctx)
	}
	if c.spool != nil {
		if err := c.spool.Start(ctx); err != nil {
			return fmt.Errorf("failed to start spool watcher: %w", err)
		}
	}
	c.coordinator.Start(ctx, c.config.Coordinator.Interval)
	return nil
}

// Stop halts background work started by Start, aborts running cycles and
// waits for them to finish.
func (c *Container) Stop() {
	c.coordinator.Stop()
	for _, engine := range c.engines {
		engine.Abort()
	}
	c.coordinator.Wait()
	if c.probe != nil {
		c.probe.Stop()
	}
	if c.spool != nil {
		_ = c.spool.Close()
	}
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.coordinator != nil {
			c.Stop()
		}

		for _, unsubscribe := range c.unsubscribe {
			unsubscribe()
		}

		if c.tracer != nil {
			_ = c.tracer.Shutdown(context.Background())
		}

		if c.dbConn != nil {
			c.closeErr = c.dbConn.Close()
		}
	})
	return c.closeErr
}

// CheckConnectivity refreshes the oracle when it probes, and returns the current status.
func (c *Container) CheckConnectivity(ctx context.Context) outbox.ConnectionStatus {
	if c.probe != nil {
		return c.probe.Check(ctx).Status
	}
	return c.oracle.Status()
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() *sql.DB {
	return c.db
}

// QueueNames returns the configured queue names in sorted order.
func (c *Container) QueueNames() []string {
	return c.config.QueueNames()
}

// Queue returns the store for the named queue.
func (c *Container) Queue(name string) (ports.UploadQueue, error) {
	store, ok := c.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrQueueNotFound, name)
	}
	return store, nil
}

// FindItem looks an id up across every queue.
func (c *Container) FindItem(ctx context.Context, id string) (ports.UploadQueue, *outbox.Upload, error) {
	for _, name := range c.QueueNames() {
		store := c.queues[name]
		u, err := store.Get(ctx, id)
		if err == nil {
			return store, u, nil
		}
		if !domainerrors.Is(err, domainerrors.ErrItemNotFound) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", domainerrors.ErrItemNotFound, id)
}

// Engine returns the engine for the named queue.
func (c *Container) Engine(name string) (*UploadEngine, error) {
	engine, ok := c.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrQueueNotFound, name)
	}
	return engine, nil
}

// Coordinator returns the sync coordinator.
func (c *Container) Coordinator() *syncengine.Coordinator {
	return c.coordinator
}

// Oracle returns the connectivity oracle.
func (c *Container) Oracle() ports.NetworkOracle {
	return c.oracle
}

// History returns the cycle history repository.
func (c *Container) History() *storage.CycleHistoryRepository {
	return c.history
}

// Spool returns the spool watcher, or nil when the spool is disabled.
func (c *Container) Spool() *spool.Watcher {
	return c.spool
}
