package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	Workers            int
	QueueSize          int
	JobTimeout         time.Duration // 0 disables the watchdog
	ProgressInterval   int
	MaxUploadSize      int64
	ArtifactTTL        time.Duration // 0 keeps artifacts until deleted
	JobRetention       time.Duration // 0 keeps finished jobs
	HistoryRetention   time.Duration // 0 keeps history indefinitely
	HistoryPageSizeMax int
	SweepInterval      time.Duration
}

const (
	DefaultJobTimeout         = 30 * time.Minute
	DefaultMaxUploadSize      = 50 << 20
	DefaultArtifactTTL        = 24 * time.Hour
	DefaultJobRetention       = 7 * 24 * time.Hour
	DefaultHistoryPageSizeMax = 100
	DefaultSweepInterval      = 10 * time.Minute
)

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Workers:            DefaultWorkers,
		QueueSize:          DefaultQueueSize,
		JobTimeout:         DefaultJobTimeout,
		ProgressInterval:   DefaultProgressInterval,
		MaxUploadSize:      DefaultMaxUploadSize,
		ArtifactTTL:        DefaultArtifactTTL,
		JobRetention:       DefaultJobRetention,
		HistoryPageSizeMax: DefaultHistoryPageSizeMax,
		SweepInterval:      DefaultSweepInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = DefaultMaxUploadSize
	}
	if o.HistoryPageSizeMax <= 0 {
		o.HistoryPageSizeMax = DefaultHistoryPageSizeMax
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	return o
}

// Deps are the collaborators of a Service. Nil stores default to the
// in-memory implementations.
type Deps struct {
	Registry  *Registry
	Jobs      JobStore
	Artifacts ArtifactStore
	History   HistoryRecorder
	Logger    *slog.Logger
}

// Service is the job engine: it accepts import and export requests, runs
// them on a bounded worker pool and serves status, downloads and history.
type Service struct {
	registry  *Registry
	jobs      JobStore
	artifacts ArtifactStore
	history   HistoryRecorder
	logger    *slog.Logger
	opts      Options
	now       func() time.Time

	pool     *Pool
	payloads *payloadTable

	mu         sync.Mutex
	running    map[string]context.CancelCauseFunc
	stopAll    context.CancelCauseFunc
	shutdownMu sync.Once
}

// NewService wires an engine. Start must be called before jobs execute.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Registry == nil {
		return nil, errors.New("core: registry is required")
	}
	if deps.Jobs == nil {
		deps.Jobs = NewMemoryJobStore()
	}
	if deps.Artifacts == nil {
		deps.Artifacts = NewMemoryArtifactStore()
	}
	if deps.History == nil {
		deps.History = NewMemoryHistory()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Service{
		registry:  deps.Registry,
		jobs:      deps.Jobs,
		artifacts: deps.Artifacts,
		history:   deps.History,
		logger:    deps.Logger,
		opts:      opts.withDefaults(),
		now:       time.Now,
		payloads:  newPayloadTable(),
		running:   make(map[string]context.CancelCauseFunc),
	}
	s.pool = NewPool(s.opts.Workers, s.opts.QueueSize, s.runJob)
	return s, nil
}

// Start fails jobs orphaned by a previous process and launches the workers.
// Workers run on their own context so request cancellation never reaches them.
func (s *Service) Start(ctx context.Context) error {
	if err := s.recoverStale(ctx); err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}

	workCtx, cancel := context.WithCancelCause(context.Background())
	s.mu.Lock()
	s.stopAll = cancel
	s.mu.Unlock()

	s.pool.Start(workCtx)
	s.logger.Info("job engine started",
		"workers", s.opts.Workers,
		"queue_size", s.opts.QueueSize,
		"job_timeout", s.opts.JobTimeout.String(),
	)
	return nil
}

// Shutdown stops accepting jobs and waits for running ones. If ctx expires
// first, running jobs are interrupted and failed.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownMu.Do(func() {
		s.pool.Stop()

		err = s.pool.Wait(ctx)
		if err == nil {
			s.logger.Info("job engine stopped")
			return
		}

		s.logger.Warn("shutdown deadline reached, interrupting jobs", "active", s.pool.ActiveCount())
		s.mu.Lock()
		if s.stopAll != nil {
			s.stopAll(ErrJobInterrupted)
		}
		s.mu.Unlock()

		graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.pool.Wait(graceCtx)
	})
	return err
}

// WaitIdle blocks until no job is queued or running.
func (s *Service) WaitIdle(ctx context.Context) error {
	return s.pool.WaitForDrain(ctx)
}

// PoolStatus reports worker pool occupancy.
func (s *Service) PoolStatus() PoolStatus {
	return s.pool.Status()
}

// Entities returns the registered adapters.
func (s *Service) Entities() []Adapter {
	return s.registry.All()
}

// Adapter returns the adapter for kind.
func (s *Service) Adapter(kind EntityKind) (Adapter, bool) {
	return s.registry.Get(kind)
}

// recoverStale fails jobs left non-terminal by an earlier process. Their
// uploads lived in that process's memory and cannot be resumed.
func (s *Service) recoverStale(ctx context.Context) error {
	stale, err := s.jobs.FailStale(ctx, ErrJobInterrupted.Error(), s.now())
	if err != nil {
		return err
	}
	for _, job := range stale {
		s.recordHistory(ctx, job)
	}
	if len(stale) > 0 {
		s.logger.Warn("failed jobs interrupted by restart", "count", len(stale))
	}
	return nil
}

func (s *Service) track(jobID string, cancel context.CancelCauseFunc) {
	s.mu.Lock()
	s.running[jobID] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(jobID string) {
	s.mu.Lock()
	delete(s.running, jobID)
	s.mu.Unlock()
}

func (s *Service) cancelRunning(jobID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		cancel(ErrJobCancelled)
	}
	return ok
}
