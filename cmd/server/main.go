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

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/adminjobs/internal/config"
	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/entities"
	"github.com/JonMunkholm/adminjobs/internal/logging"
	"github.com/JonMunkholm/adminjobs/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// run owns every resource it opens so deferred cleanup runs before main
// decides the exit code.
func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer st.Close()

	registry := core.NewRegistry()
	entities.Register(registry, st.entities)
	slog.Info("entities registered", "count", registry.Len())

	service, err := core.NewService(core.Deps{
		Registry:  registry,
		Jobs:      st.jobs,
		Artifacts: st.artifacts,
		History:   st.history,
		Logger:    logger,
	}, engineOptions(cfg))
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("start job engine: %w", err)
	}

	// Background maintenance stops with this context
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	go service.StartScheduler(bgCtx)

	server := web.NewServer(service, cfg)
	server.StartLimiterCleanup(bgCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	var runErr error
	select {
	case <-sigCh:
		slog.Info("shutting down...")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancelBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	// Queued and running jobs get the rest of the deadline
	status := service.PoolStatus()
	if status.Active > 0 || status.Queued > 0 {
		slog.Info("waiting for jobs to finish", "active", status.Active, "queued", status.Queued)
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		slog.Warn("jobs did not finish in time", "error", err)
	}
	return runErr
}
