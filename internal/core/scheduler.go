package core

// scheduler.go runs periodic maintenance:
//  1. Purge artifacts past their TTL (exports and error reports)
//  2. Delete finished job metadata older than the job retention window
//  3. Purge history older than the history retention window, when one is set
//
// A failing step is logged and the remaining steps still run.

import (
	"context"
	"time"
)

// SweepResult counts what one maintenance cycle removed.
type SweepResult struct {
	Artifacts int
	Jobs      int
	History   int
}

// StartScheduler runs Sweep immediately and then every SweepInterval until
// ctx is cancelled.
func (s *Service) StartScheduler(ctx context.Context) {
	s.logger.Info("maintenance scheduler started",
		"interval", s.opts.SweepInterval.String(),
		"artifact_ttl", s.opts.ArtifactTTL.String(),
		"job_retention", s.opts.JobRetention.String(),
		"history_retention", s.opts.HistoryRetention.String(),
	)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one maintenance cycle.
func (s *Service) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	now := s.now()
	var res SweepResult

	n, err := s.artifacts.PurgeExpired(ctx, now)
	if err != nil {
		s.logger.Error("purge expired artifacts", "error", err)
	} else {
		res.Artifacts = n
	}

	if s.opts.JobRetention > 0 {
		n, err := s.jobs.DeleteOlderThan(ctx, now.Add(-s.opts.JobRetention))
		if err != nil {
			s.logger.Error("delete old jobs", "error", err)
		} else {
			res.Jobs = n
		}
	}

	if s.opts.HistoryRetention > 0 {
		n, err := s.history.PurgeOlderThan(ctx, now.Add(-s.opts.HistoryRetention))
		if err != nil {
			s.logger.Error("purge old history", "error", err)
		} else {
			res.History = n
		}
	}

	s.logger.Debug("maintenance sweep completed",
		"artifacts_purged", res.Artifacts,
		"jobs_deleted", res.Jobs,
		"history_purged", res.History,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}
