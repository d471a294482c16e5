// Package main contains the entrypoint for the intake assistant service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sportmind/intake/internal/ai"
	"github.com/sportmind/intake/internal/api"
	"github.com/sportmind/intake/internal/compose"
	"github.com/sportmind/intake/internal/config"
	"github.com/sportmind/intake/internal/database"
	"github.com/sportmind/intake/internal/directory"
	"github.com/sportmind/intake/internal/logger"
	"github.com/sportmind/intake/internal/policy"
	"github.com/sportmind/intake/internal/scheduler"
	"github.com/sportmind/intake/internal/session"
)

const (
	indexBuildTimeout = 2 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components, serves traffic until the context is
// cancelled and returns the process exit code.
func run(ctx context.Context) int {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info("configuration loaded",
		"ai_backend", cfg.AI.Backend,
		"ai_model", cfg.AI.Model,
		"directory_path", cfg.Directory.Path)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("failed to initialize database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	turns := database.NewStore(db, log)

	// The directory must load and index before we accept traffic.
	specialists, err := directory.LoadFile(cfg.Directory.Path)
	if err != nil {
		log.Error("failed to load specialist directory", "path", cfg.Directory.Path, "error", err)
		return 1
	}

	embedder := ai.NewEmbedder(cfg, log)

	buildCtx, cancelBuild := context.WithTimeout(ctx, indexBuildTimeout)
	index, err := directory.BuildIndex(buildCtx, specialists, embedder, log)
	cancelBuild()
	if err != nil {
		log.Error("failed to build directory index", "error", err)
		return 1
	}
	if index.Size() == 0 {
		log.Warn("no specialist descriptions could be embedded; retrieval will never match")
	}

	generator, err := ai.NewGenerator(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize text-generation backend", "error", err)
		return 1
	}

	sessions := session.NewStore(policy.CooldownTurns)
	engine := policy.NewEngine(index, log, policy.WithVariantPicker(compose.PoolSize, nil))
	composer := compose.NewComposer(cfg.Support.Contact)

	svc := api.NewChatService(sessions, engine, composer, generator, turns, cfg.AI.Instruction, log)
	handler := api.NewHandler(svc, cfg.Server.RequestTimeout, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	sched, err := scheduler.New(log)
	if err != nil {
		log.Error("failed to initialize scheduler", "error", err)
		return 1
	}
	if err := sched.AddCronJob("db_maintenance", cfg.Database.MaintenanceCron,
		scheduler.NewMaintenanceJob(turns, cfg.Database.RetentionDays, log)); err != nil {
		log.Error("failed to schedule maintenance job", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", "error", err)
		}
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", "error", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service stopped with error", "error", err)
		return 1
	}

	log.Info("shutdown complete")

	return 0
}
