package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/config"
	"github.com/vrsandeep/beatvault/internal/db"
	"github.com/vrsandeep/beatvault/internal/downloader"
	"github.com/vrsandeep/beatvault/internal/downloader/providers"
	"github.com/vrsandeep/beatvault/internal/downloader/providers/mocktube"
	"github.com/vrsandeep/beatvault/internal/downloader/providers/youtube"
	"github.com/vrsandeep/beatvault/internal/logging"
	"github.com/vrsandeep/beatvault/internal/objectstore"
	"github.com/vrsandeep/beatvault/internal/scheduler"
	"github.com/vrsandeep/beatvault/internal/statestore"
	"github.com/vrsandeep/beatvault/internal/store"
	"github.com/vrsandeep/beatvault/internal/websocket"
	"github.com/vrsandeep/beatvault/internal/ytdlp"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Store      *store.Store
	Bucket     objectstore.Bucket
	States     *statestore.Store
	Executor   *downloader.Executor
	Schedulers *scheduler.Holder
	WsHub      *websocket.Hub
	Logger     *zap.Logger
	Version    string
}

// New sets up and returns a new App instance from config.yml in the
// working directory.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds the logger from cfg and opens the App with it.
func NewWithConfig(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return Open(cfg, logger)
}

// Open opens the database, runs migrations, opens the bucket and wires the
// scheduler around them.
func Open(cfg *config.Config, logger *zap.Logger) (*App, error) {
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	if err := db.RunMigrations(database); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	bucket, err := objectstore.Open(objectstore.Options{
		Driver:        cfg.Storage.Driver,
		Path:          cfg.Storage.Path,
		RedisAddr:     cfg.Storage.Redis.Addr,
		RedisPassword: cfg.Storage.Redis.Password,
		RedisDB:       cfg.Storage.Redis.DB,
		RedisPrefix:   cfg.Storage.Redis.Prefix,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	app := Assemble(cfg, database, bucket, logger)
	app.Logger.Info("Core application setup complete",
		zap.String("database", cfg.Database.Path),
		zap.String("storage", cfg.Storage.Driver))
	return app, nil
}

// Assemble wires an App from already opened resources. The websocket hub
// is created but not started.
func Assemble(cfg *config.Config, database *sql.DB, bucket objectstore.Bucket, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	st := store.New(database)
	app := &App{
		Config: cfg,
		DB:     database,
		Store:  st,
		Bucket: bucket,
		States: statestore.New(bucket),
		Executor: downloader.NewExecutor(st, bucket, logger.Named("executor"), downloader.Options{
			WorkDir:       cfg.Downloader.WorkDir,
			SourceTimeout: cfg.Downloader.SourceTimeout(),
			MaxItems:      cfg.Downloader.MaxItemsPerSource,
			MediaPrefix:   cfg.Downloader.MediaPrefix,
		}),
		WsHub:   websocket.NewHub(logger),
		Logger:  logger,
		Version: "dev",
	}
	app.Schedulers = scheduler.NewHolder(app.loadScheduler, cfg.Scheduler.IntervalHours)
	return app
}

// loadScheduler reads the persisted document, repairs it and builds the
// scheduler around the app's collaborators.
func (a *App) loadScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	sc := a.Config.Scheduler
	state, err := statestore.Load(ctx, a.States, sc.StateKey, scheduler.DefaultState(sc.IntervalHours))
	if err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}
	state = scheduler.Normalize(state, sc.IntervalHours, sc.MaxLogEntries, time.Now())

	opts := scheduler.Options{
		MaxLogEntries:     sc.MaxLogEntries,
		StateKey:          sc.StateKey,
		SourceConcurrency: sc.SourceConcurrency,
		Validator:         providers.ValidateSource,
		Logger:            a.Logger.Named("scheduler"),
	}
	if a.WsHub != nil {
		opts.Notifier = a.WsHub
	}
	if sc.RunLockPath != "" {
		opts.RunLock = flock.New(sc.RunLockPath)
	}

	a.Logger.Info("Scheduler loaded",
		zap.Bool("active", state.Active),
		zap.Int("sources", len(state.Sources)),
		zap.Int("interval_hours", state.IntervalHours))
	return scheduler.New(state, a.Executor, a.Store, a.States, opts), nil
}

// RegisterProviders adds the download providers enabled by cfg to the
// global registry. Call it once per process.
func RegisterProviders(cfg *config.Config) {
	client := ytdlp.New(cfg.Downloader.YtdlpPath, cfg.Downloader.CookiesPath, cfg.Downloader.AudioFormat)
	providers.Register(youtube.New(client))
	if cfg.Downloader.EnableMockProvider {
		providers.Register(mocktube.New())
	}
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	a.Schedulers.Wait()
	if a.WsHub != nil {
		a.WsHub.Stop()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
