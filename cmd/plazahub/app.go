package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pasantias/plaza-hub/config"
	"github.com/pasantias/plaza-hub/internal/application/command"
	"github.com/pasantias/plaza-hub/internal/application/eventhandler"
	"github.com/pasantias/plaza-hub/internal/application/query"
	"github.com/pasantias/plaza-hub/internal/domain/placement"
	"github.com/pasantias/plaza-hub/internal/domain/shared"
	"github.com/pasantias/plaza-hub/internal/infrastructure/messaging"
	"github.com/pasantias/plaza-hub/internal/infrastructure/metrics"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/postgres"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/redis"
	"github.com/pasantias/plaza-hub/internal/infrastructure/scheduler/jobs"
	"github.com/pasantias/plaza-hub/internal/infrastructure/service"
	"github.com/pasantias/plaza-hub/pkg/circuitbreaker"
	"github.com/pasantias/plaza-hub/pkg/logger"
	"github.com/pasantias/plaza-hub/pkg/retry"
)

// eventBus is implemented by both the in-memory and the Redis bus.
type eventBus interface {
	shared.EventBus
	Close() error
}

// app holds every wired component. Commands build one, use the parts they
// need and close it.
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	slog *slog.Logger

	db       *postgres.Connection
	store    *postgres.PlacementStore
	cache    *redis.Cache // nil when Redis is disabled
	avail    *redis.AvailabilityCache
	bus      eventBus
	recorder *metrics.Recorder

	assign       *command.AssignStudentsHandler
	transition   *command.TransitionStateHandler
	document     *command.RecordDocumentHandler
	availability *query.GetSlotAvailabilityHandler
	eligibility  *query.CheckEligibilityHandler
	advance      *jobs.AdvanceInternshipsJob

	closers []func() error
}

// loadConfig reads dotenv files and the environment.
func loadConfig(envFiles []string) (*config.Config, error) {
	cfg, err := config.LoadFiles(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLoggers builds the structured logger used by commands and queries and
// the slog logger used by infrastructure components.
func newLoggers(cfg *config.Config) (*logger.Logger, *slog.Logger) {
	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)

	handlerOpts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	sl := slog.New(handler).With("app", cfg.App.Name)
	return log, sl
}

func slogLevel(s string) slog.Level {
	switch logger.ParseLevel(s) {
	case logger.LevelDebug:
		return slog.LevelDebug
	case logger.LevelWarn:
		return slog.LevelWarn
	case logger.LevelError, logger.LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newApp connects to PostgreSQL and, unless disabled, Redis, and wires the
// handlers. Connection attempts are retried while dependencies come up.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	log, sl := newLoggers(cfg)
	a := &app{
		cfg:      cfg,
		log:      log,
		slog:     sl,
		recorder: metrics.NewRecorder(),
	}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	startup := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("dependency not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})

	// PostgreSQL
	dbCfg := postgresConfig(cfg)
	err = startup.Do(ctx, func(ctx context.Context) error {
		conn, err := postgres.NewConnection(ctx, dbCfg)
		if err != nil {
			return err
		}
		a.db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { a.db.Close(); return nil })
	a.store = postgres.NewPlacementStore(a.db)

	// Redis
	if !cfg.Redis.Disabled {
		redisCfg := redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   redis.DefaultConfig().MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		}
		err = startup.Do(ctx, func(context.Context) error {
			cache, err := redis.NewCache(redisCfg)
			if err != nil {
				return err
			}
			a.cache = cache
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, a.cache.Close)

		breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.Transition(from.String(), to.String()),
			)
		})
		a.avail = redis.NewAvailabilityCache(a.cache, cfg.Redis.AvailabilityTTL, breaker)
	}

	// Event bus
	localCfg := messaging.DefaultInMemoryEventBusConfig()
	localCfg.Logger = sl
	localCfg.Observer = a.recorder
	if a.cache != nil {
		a.bus, err = messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewPubSubAdapter(a.cache),
			ChannelName:    a.cache.Key(redis.PrefixPubSub, "events"),
			LocalBusConfig: localCfg,
			Logger:         sl,
		})
		if err != nil {
			return nil, fmt.Errorf("start event bus: %w", err)
		}
	} else {
		a.bus = messaging.NewInMemoryEventBus(localCfg)
	}
	// Closed first so in-flight handlers finish while connections are open.
	a.closers = append(a.closers, a.bus.Close)

	var notifier eventhandler.Notifier = service.NewLogNotifier(sl)
	if cfg.Notify.Outbox {
		notifier = service.NewOutboxNotifier(a.cache, cfg.Notify.OutboxMaxLen)
	}
	if err = eventhandler.NewNotificationHandler(notifier, sl).Register(a.bus); err != nil {
		return nil, fmt.Errorf("register notifications: %w", err)
	}

	// Handlers
	ledger := placement.NewCapacityLedger()
	var (
		invalidator command.AvailabilityInvalidator
		cache       query.AvailabilityCache
	)
	if a.avail != nil {
		invalidator = a.avail
		cache = a.avail
	}
	opts := []command.Option{
		command.WithLogger(log),
		command.WithMetrics(a.recorder),
		command.WithInvalidator(invalidator),
	}

	a.assign = command.NewAssignStudentsHandler(a.store, ledger, a.bus, allocationPolicy(cfg.Features), opts...)
	a.transition = command.NewTransitionStateHandler(a.store, placement.Lifecycles(), a.bus, opts...)
	a.document = command.NewRecordDocumentHandler(a.store, a.bus, opts...)
	a.availability = query.NewGetSlotAvailabilityHandler(a.store, ledger, cache, log)
	a.eligibility = query.NewCheckEligibilityHandler(a.store)

	advanceCfg := jobs.DefaultAdvanceInternshipsConfig()
	advanceCfg.BatchSize = cfg.Scheduler.AdvanceBatchSize
	advanceCfg.Timeout = cfg.Scheduler.JobTimeout
	advanceCfg.Enabled = cfg.Features.Enabled(config.FeatureAutoAdvance)
	advanceCfg.Now = func() time.Time { return time.Now().In(cfg.App.Location) }
	a.advance = jobs.NewAdvanceInternshipsJob(a.store, a.transition, sl, advanceCfg)

	return a, nil
}

func postgresConfig(cfg *config.Config) postgres.Config {
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	return dbCfg
}

// allocationPolicy maps feature flags to assignment restrictions. Flags are
// read once; changing them requires a restart.
func allocationPolicy(ff *config.FeatureFlags) command.AllocationPolicy {
	return command.AllocationPolicy{
		SingleActiveInternship:   ff.IsEnabled(config.FeatureSingleActiveInternship),
		RequireApprovedDocuments: ff.IsEnabled(config.FeatureRequireApprovedDocuments),
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
