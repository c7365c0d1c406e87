// Command migrate applies or reverts the PostgreSQL schema.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/adminjobs/internal/config"
	"github.com/JonMunkholm/adminjobs/internal/logging"
	"github.com/JonMunkholm/adminjobs/internal/storage/postgres"
)

func main() {
	var (
		action      = flag.String("action", "up", "Migration action: up, down, version")
		databaseURL = flag.String("database", "", "PostgreSQL URL (default: DATABASE_URL)")
	)
	flag.Parse()

	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	url := *databaseURL
	if url == "" {
		url = cfg.Database.URL
	}
	if url == "" {
		slog.Error("no database configured; set DATABASE_URL or pass -database")
		os.Exit(1)
	}

	if err := run(*action, url); err != nil {
		slog.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}
}

func run(action, url string) error {
	switch action {
	case "up":
		slog.Info("running migrations")
		if err := postgres.Migrate(url); err != nil {
			return err
		}
		slog.Info("migrations completed")

	case "down":
		slog.Info("rolling back last migration")
		if err := postgres.Rollback(url); err != nil {
			return err
		}
		slog.Info("migration rolled back")

	case "version":
		version, dirty, err := postgres.Version(url)
		if err != nil {
			return err
		}
		slog.Info("current migration version", "version", version, "dirty", dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}
	return nil
}
