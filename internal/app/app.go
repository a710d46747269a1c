package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/jobpipe/internal/callback"
	"github.com/phrazzld/jobpipe/internal/config"
	"github.com/phrazzld/jobpipe/internal/engine"
	"github.com/phrazzld/jobpipe/internal/events"
	"github.com/phrazzld/jobpipe/internal/platform/gemini"
	"github.com/phrazzld/jobpipe/internal/platform/memory"
	"github.com/phrazzld/jobpipe/internal/platform/minio"
	"github.com/phrazzld/jobpipe/internal/platform/nats"
	"github.com/phrazzld/jobpipe/internal/platform/redis"
	"github.com/phrazzld/jobpipe/internal/platform/sqlstore"
	"github.com/phrazzld/jobpipe/internal/service"
	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/phrazzld/jobpipe/internal/task"
)

// Options selects which optional parts of the graph are built.
type Options struct {
	// WithWorkers builds the processing engine and outcome handlers
	// needed by a task.Runner.
	WithWorkers bool
}

// App holds all the shared application dependencies and ensures proper
// cleanup on shutdown.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Blobs  store.BlobStore
	Ledger store.JobLedger
	Queue  store.WorkQueue

	// Engine and Events are nil unless Options.WithWorkers is set.
	Engine engine.Engine
	Events *events.InMemoryEventEmitter

	// Pingers lists the remote backends checked by readiness probes.
	Pingers map[string]store.Pinger

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New connects every configured backend, creates both buckets and, when
// requested, the engine and outcome handlers. On error, everything opened so
// far is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Pingers: make(map[string]store.Pinger),
	}

	if err := a.build(ctx, opts); err != nil {
		if cerr := a.Close(); cerr != nil {
			logger.Error("cleanup after failed startup", "error", cerr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	var rdb *goredis.Client
	if a.Config.NeedsRedis() {
		var err error
		rdb, err = redis.NewClient(ctx, redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.onClose("redis", rdb.Close)
		a.Logger.Info("connected to redis", "addr", a.Config.Redis.Addr)
	}

	if err := a.buildLedger(ctx, rdb); err != nil {
		return err
	}
	a.buildQueue(rdb)
	if err := a.buildBlobs(ctx); err != nil {
		return err
	}

	if !opts.WithWorkers {
		return nil
	}
	if err := a.buildEngine(ctx); err != nil {
		return err
	}
	return a.buildEvents()
}

func (a *App) buildLedger(ctx context.Context, rdb *goredis.Client) error {
	cfg := a.Config.Ledger
	switch cfg.Backend {
	case config.BackendMemory:
		a.Ledger = memory.NewJobLedger()
	case config.BackendRedis:
		ledger := redis.NewJobLedger(rdb, a.Config.Redis.KeyPrefix, a.Logger)
		a.Ledger = ledger
		a.Pingers["ledger"] = ledger
	case config.BackendPostgres, config.BackendSQLite:
		dialect := sqlstore.Dialect(cfg.Backend)
		db, err := sqlstore.Open(ctx, sqlstore.Options{
			Dialect:     dialect,
			DSN:         cfg.DSN,
			AutoMigrate: cfg.AutoMigrate,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open ledger database: %w", err)
		}
		a.onClose("ledger database", db.Close)
		ledger := sqlstore.NewJobLedger(db, dialect, a.Logger)
		a.Ledger = ledger
		a.Pingers["ledger"] = ledger
	default:
		return fmt.Errorf("unsupported ledger backend %q", cfg.Backend)
	}
	a.Logger.Info("job ledger initialized", "backend", cfg.Backend)
	return nil
}

func (a *App) buildQueue(rdb *goredis.Client) {
	if a.Config.Queue.Backend == config.BackendRedis {
		queue := redis.NewWorkQueue(rdb, a.Config.Redis.KeyPrefix, a.Config.Queue.Name, a.Logger)
		a.Queue = queue
		a.Pingers["queue"] = queue
	} else {
		a.Queue = memory.NewWorkQueue()
	}
	a.Logger.Info("work queue initialized", "backend", a.Config.Queue.Backend, "name", a.Config.Queue.Name)
}

func (a *App) buildBlobs(ctx context.Context) error {
	cfg := a.Config.Blob
	if cfg.Backend == config.BackendMinio {
		blobs, err := minio.New(minio.Options{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Region:    cfg.Region,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Blobs = blobs
		a.Pingers["blob"] = blobs
	} else {
		a.Blobs = memory.NewBlobStore()
	}

	for _, bucket := range []string{cfg.InputBucket, cfg.OutputBucket} {
		err := store.Retry(ctx, a.retryPolicy(), "blob.ensure_bucket", a.Logger, func(ctx context.Context) error {
			return a.Blobs.EnsureBucket(ctx, bucket)
		})
		if err != nil {
			return fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
		}
	}
	a.Logger.Info("blob store initialized",
		"backend", cfg.Backend,
		"input_bucket", cfg.InputBucket,
		"output_bucket", cfg.OutputBucket)
	return nil
}

func (a *App) buildEngine(ctx context.Context) error {
	cfg := a.Config.Engine
	switch cfg.Kind {
	case config.EngineGemini:
		summarizer, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			ModelName:  cfg.ModelName,
			MaxRetries: cfg.MaxRetries,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize gemini engine: %w", err)
		}
		a.Engine = summarizer
	default:
		cmd, err := engine.NewCommand(engine.CommandConfig{
			Path:    cfg.Command,
			Args:    cfg.Args,
			Timeout: cfg.Timeout,
			WorkDir: cfg.WorkDir,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize command engine: %w", err)
		}
		a.Engine = cmd
	}
	a.Logger.Info("processing engine initialized", "kind", cfg.Kind)
	return nil
}

func (a *App) buildEvents() error {
	a.Events = events.NewInMemoryEventEmitter(a.Logger)

	notifier := callback.NewNotifier(nil, a.Config.Callback.Timeout, a.Logger)
	a.Events.RegisterHandler(callback.NewHandler(notifier, a.Logger))

	if a.Config.Events.NATSURL == "" {
		return nil
	}
	nc, err := nats.Connect(a.Config.Events.NATSURL, a.Logger)
	if err != nil {
		return err
	}
	a.onClose("nats", nc.Drain)
	a.Events.RegisterHandler(nats.NewPublisher(nc, a.Config.Events.SubjectPrefix, a.Logger))
	return nil
}

// JobService creates the submission and query service.
func (a *App) JobService() (*service.JobService, error) {
	return service.NewJobService(a.Blobs, a.Ledger, a.Queue, service.JobServiceConfig{
		InputBucket:        a.Config.Blob.InputBucket,
		OutputBucket:       a.Config.Blob.OutputBucket,
		MaxPayloadBytes:    a.Config.Server.MaxPayloadBytes,
		PayloadKind:        a.Config.Submission.PayloadKind,
		AllowedURLPrefixes: a.Config.Submission.AllowedURLPrefixes,
		Retry:              a.retryPolicy(),
	}, a.Logger)
}

// Runner creates the worker pipeline. New must have been called with
// Options.WithWorkers.
func (a *App) Runner() (*task.Runner, error) {
	if a.Engine == nil || a.Events == nil {
		return nil, errors.New("app was built without workers")
	}

	cfg := task.DefaultRunnerConfig()
	cfg.WorkerCount = a.Config.Worker.Count
	cfg.PopTimeout = a.Config.Worker.PopTimeout
	cfg.OutputBucket = a.Config.Blob.OutputBucket
	cfg.StuckJobAge = a.Config.Worker.StuckJobAge
	if a.Config.Worker.StuckCheckInterval > 0 {
		cfg.StuckCheckInterval = a.Config.Worker.StuckCheckInterval
	}
	cfg.RecoverOnStart = a.Config.Worker.RecoverOnStart
	cfg.Retry = a.retryPolicy()

	return task.NewRunner(task.Dependencies{
		Blobs:  a.Blobs,
		Ledger: a.Ledger,
		Queue:  a.Queue,
		Engine: a.Engine,
		Events: a.Events,
	}, cfg, a.Logger)
}

func (a *App) retryPolicy() store.RetryPolicy {
	return store.RetryPolicy{
		MaxRetries: a.Config.StorageRetry.MaxRetries,
		BaseDelay:  a.Config.StorageRetry.BaseDelay,
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases every connection in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		a.Logger.Debug("closed", "resource", c.name)
	}
	a.closers = nil
	return errors.Join(errs...)
}
