package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/adminjobs/internal/config"
	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/entities"
	"github.com/JonMunkholm/adminjobs/internal/storage/objectstore"
	"github.com/JonMunkholm/adminjobs/internal/storage/postgres"
	"github.com/JonMunkholm/adminjobs/internal/storage/redisstore"
)

// stores are the persistence backends selected by configuration.
type stores struct {
	jobs      core.JobStore
	history   core.HistoryRecorder
	artifacts core.ArtifactStore
	entities  entities.Repository

	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects PostgreSQL when DATABASE_URL is set (in-memory
// otherwise) and the artifact backend named by ARTIFACT_BACKEND.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	if cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory stores; jobs and entities are lost on restart")
		st.jobs = core.NewMemoryJobStore()
		st.history = core.NewMemoryHistory()
		st.entities = entities.NewMemoryRepository()
	} else {
		pool, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.jobs = postgres.NewJobStore(pool)
		st.history = postgres.NewHistoryStore(pool, cfg.History.PageSizeMax)
		st.entities = postgres.NewEntityRepository(pool)
	}

	artifacts, err := openArtifacts(ctx, cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.artifacts = artifacts
	return st, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.URL); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		slog.Info("database migrations applied")
	}

	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		URL:             cfg.URL,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func openArtifacts(ctx context.Context, cfg *config.Config, st *stores) (core.ArtifactStore, error) {
	switch strings.ToLower(cfg.Artifacts.Backend) {
	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		slog.Info("artifact store ready", "backend", "redis", "addr", cfg.Redis.Addr)
		return redisstore.NewArtifactStore(client, cfg.Redis.Prefix), nil

	case config.BackendMinio:
		store, err := objectstore.New(ctx, objectstore.Options{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Bucket:    cfg.ObjectStore.Bucket,
			Region:    cfg.ObjectStore.Region,
			UseSSL:    cfg.ObjectStore.UseSSL,
			Prefix:    cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("artifact store ready", "backend", "minio", "bucket", cfg.ObjectStore.Bucket)
		return store, nil
	}

	slog.Info("artifact store ready", "backend", "memory")
	return core.NewMemoryArtifactStore(), nil
}

// engineOptions maps configuration onto the engine's tunables.
func engineOptions(cfg *config.Config) core.Options {
	return core.Options{
		Workers:            cfg.Jobs.Workers,
		QueueSize:          cfg.Jobs.QueueSize,
		JobTimeout:         cfg.Jobs.Timeout,
		ProgressInterval:   cfg.Jobs.ProgressInterval,
		MaxUploadSize:      int64(cfg.Jobs.MaxUploadSize),
		ArtifactTTL:        cfg.Artifacts.TTL,
		JobRetention:       cfg.Jobs.Retention,
		HistoryRetention:   cfg.History.Retention(),
		HistoryPageSizeMax: cfg.History.PageSizeMax,
		SweepInterval:      cfg.Artifacts.SweepInterval,
	}
}
