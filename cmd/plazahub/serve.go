package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pasantias/plaza-hub/config"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/postgres"
	"github.com/pasantias/plaza-hub/internal/infrastructure/persistence/redis"
	"github.com/pasantias/plaza-hub/internal/infrastructure/scheduler"
	httpserver "github.com/pasantias/plaza-hub/internal/interface/http"
	"github.com/pasantias/plaza-hub/internal/interface/http/handlers"
	"github.com/pasantias/plaza-hub/pkg/logger"
)

func newServeCommand(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the event bus, the lifecycle scheduler and the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			a.log.Error("shutdown", logger.Err(err))
		}
	}()

	log := a.log.With(logger.Component("serve"))
	log.Info("starting plaza-hub",
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.Bool("redis", a.cache != nil),
	)

	if cfg.Database.Migrate {
		if err := postgres.NewMigrator(a.db).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedule, err := scheduler.ParseSchedule(cfg.Scheduler.AdvanceSchedule)
		if err != nil {
			return fmt.Errorf("SCHEDULER_ADVANCE_SCHEDULE: %w", err)
		}

		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = a.slog
		schedCfg.Timezone = cfg.App.Location
		schedCfg.Observer = a.recorder
		if a.cache != nil {
			schedCfg.Locker = redis.NewJobLock(a.cache, cfg.Scheduler.JobTimeout+redis.TTLJobLock)
		}

		sched = scheduler.NewScheduler(schedCfg)
		if err := sched.Register(a.advance, schedule); err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
				log.Error("stop scheduler", logger.Err(err))
			}
		}()
	}

	// Ops HTTP
	var serverErr <-chan error
	if !cfg.HTTP.Disabled {
		readiness := handlers.NewCompositeHealthChecker(cfg.App.Version)
		readiness.AddCheck("postgres", a.db.Ready)
		if a.cache != nil {
			readiness.AddCheck("redis", handlers.PingCheck(a.cache))
		}

		httpCfg := httpserver.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port

		server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
			Readiness: readiness,
			Metrics:   a.recorder.Handler(),
			Logger:    a.log,
		})
		serverErr = server.StartAsync()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("stop ops server", logger.Err(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	}
}
