package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// cloneJob copies the pointer fields so callers never share state with the store.
func cloneJob(j Job) Job {
	if j.StartedAt != nil {
		t := *j.StartedAt
		j.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	if j.Filters != nil {
		f := j.Filters.Clone()
		j.Filters = &f
	}
	return j
}

// MemoryJobStore is a JobStore backed by a map.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobStore returns an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	j := cloneJob(job)
	s.jobs[job.ID] = &j
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return cloneJob(*j), nil
}

func (s *MemoryJobStore) Claim(_ context.Context, jobID string, startedAt time.Time) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if j.Status != StatusPending {
		return Job{}, ErrAlreadyClaimed
	}
	j.Status = StatusProcessing
	t := startedAt.UTC()
	j.StartedAt = &t
	return cloneJob(*j), nil
}

func (s *MemoryJobStore) UpdateProgress(_ context.Context, jobID string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: progress on %s job", ErrInvalidTransition, j.Status)
	}
	applyProgress(j, p)
	return nil
}

func (s *MemoryJobStore) Finish(_ context.Context, jobID string, from JobStatus, o Outcome) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if j.Status != from || !j.Status.CanTransition(o.Status) {
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, o.Status)
	}
	applyProgress(j, o.Progress)
	j.Status = o.Status
	j.Message = o.Message
	j.ErrorReportID = o.ErrorReportID
	if o.FileName != "" {
		j.FileName = o.FileName
	}
	t := o.CompletedAt.UTC()
	j.CompletedAt = &t
	return cloneJob(*j), nil
}

func (s *MemoryJobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryJobStore) List(_ context.Context, organizationID string, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Job
	for _, j := range s.jobs {
		if j.OrganizationID == organizationID {
			result = append(result, cloneJob(*j))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID > result[k].ID
		}
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryJobStore) FailStale(_ context.Context, message string, at time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []Job
	for _, j := range s.jobs {
		if j.Status.IsTerminal() {
			continue
		}
		j.Status = StatusFailed
		j.Message = message
		t := at.UTC()
		j.CompletedAt = &t
		failed = append(failed, cloneJob(*j))
	}
	return failed, nil
}

func (s *MemoryJobStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func applyProgress(j *Job, p Progress) {
	j.TotalRows = p.TotalRows
	j.ProcessedRows = p.ProcessedRows
	j.SuccessCount = p.SuccessCount
	j.SkippedCount = p.SkippedCount
	j.ErrorCount = p.ErrorCount
}

// MemoryArtifactStore keeps artifacts in process memory. Expiry is checked on
// read and enforced by PurgeExpired.
type MemoryArtifactStore struct {
	mu    sync.RWMutex
	items map[string]Artifact
	now   func() time.Time
}

// NewMemoryArtifactStore returns an empty store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{items: make(map[string]Artifact), now: time.Now}
}

func (s *MemoryArtifactStore) Put(_ context.Context, a Artifact) error {
	a.Bytes = append([]byte(nil), a.Bytes...)

	s.mu.Lock()
	s.items[a.Key] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, key string) (Artifact, error) {
	s.mu.RLock()
	a, ok := s.items[key]
	s.mu.RUnlock()

	if !ok || a.Expired(s.now()) {
		return Artifact{}, ErrArtifactNotFound
	}
	a.Bytes = append([]byte(nil), a.Bytes...)
	return a, nil
}

func (s *MemoryArtifactStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryArtifactStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, a := range s.items {
		if a.Expired(now) {
			delete(s.items, key)
			n++
		}
	}
	return n, nil
}

// MemoryHistory is an append-only HistoryRecorder held in memory.
type MemoryHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
}

// NewMemoryHistory returns an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Record(_ context.Context, e HistoryEntry) error {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	return nil
}

func (h *MemoryHistory) List(_ context.Context, q HistoryQuery) (HistoryPage, error) {
	q = q.Normalize(0)

	h.mu.RLock()
	var matched []HistoryEntry
	// Walk backwards: entries are appended in completion order.
	for i := len(h.entries) - 1; i >= 0; i-- {
		if q.Matches(h.entries[i]) {
			matched = append(matched, h.entries[i])
		}
	}
	h.mu.RUnlock()

	sort.SliceStable(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	page := HistoryPage{Total: len(matched), Page: q.Page, PageSize: q.PageSize, Entries: []HistoryEntry{}}
	start := q.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page.Entries = append(page.Entries, matched[start:end]...)
	return page, nil
}

func (h *MemoryHistory) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	n := 0
	for _, e := range h.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
	return n, nil
}
