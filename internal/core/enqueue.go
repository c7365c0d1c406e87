package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// ImportRequest asks for a file to be imported into an entity kind.
type ImportRequest struct {
	Tenant     Tenant
	EntityKind EntityKind
	FileName   string
	Reader     io.Reader
	Strategy   string // empty means skip
}

// ExportRequest asks for the rows of an entity kind matching Filters.
// SelectedIDs, when present, replace every other filter.
type ExportRequest struct {
	Tenant      Tenant
	EntityKind  EntityKind
	Filters     FilterCriteria
	SelectedIDs []string
	Format      string // empty means excel
}

// upload is the decoded-later body of an import, held until a worker claims it.
type upload struct {
	kind format.Kind
	data []byte
}

type payloadTable struct {
	mu    sync.Mutex
	items map[string]upload
}

func newPayloadTable() *payloadTable {
	return &payloadTable{items: make(map[string]upload)}
}

func (t *payloadTable) put(jobID string, u upload) {
	t.mu.Lock()
	t.items[jobID] = u
	t.mu.Unlock()
}

// take removes and returns the upload for a job.
func (t *payloadTable) take(jobID string) (upload, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.items[jobID]
	delete(t.items, jobID)
	return u, ok
}

func (t *payloadTable) drop(jobID string) {
	t.mu.Lock()
	delete(t.items, jobID)
	t.mu.Unlock()
}

// EnqueueImport validates the request, stores a Pending job and queues it.
// No row is read here beyond the bounded copy of the upload.
func (s *Service) EnqueueImport(ctx context.Context, req ImportRequest) (string, error) {
	if !req.Tenant.Valid() {
		return "", reject(ErrMissingTenant)
	}
	if _, ok := s.registry.Get(req.EntityKind); !ok {
		return "", rejectf(ErrUnknownEntity, "%q", req.EntityKind)
	}
	strategy, err := ParseDuplicateStrategy(req.Strategy)
	if err != nil {
		return "", reject(err)
	}

	data, err := readUpload(req.Reader, s.opts.MaxUploadSize)
	if err != nil {
		return "", reject(err)
	}
	kind, err := format.Detect(req.FileName, data)
	if err != nil {
		return "", reject(err)
	}

	job := s.newJob(req.Tenant, OperationImport, req.EntityKind)
	job.DuplicateStrategy = strategy
	job.FileName = req.FileName

	s.payloads.put(job.ID, upload{kind: kind, data: data})
	if err := s.submit(ctx, job); err != nil {
		s.payloads.drop(job.ID)
		return "", err
	}

	s.logger.Info("import enqueued",
		"job_id", job.ID,
		"organization_id", job.OrganizationID,
		"entity_kind", job.EntityKind,
		"strategy", strategy,
		"file_name", req.FileName,
		"bytes", len(data),
	)
	return job.ID, nil
}

// EnqueueExport validates the request, stores a Pending job with the
// captured filters and queues it.
func (s *Service) EnqueueExport(ctx context.Context, req ExportRequest) (string, error) {
	if !req.Tenant.Valid() {
		return "", reject(ErrMissingTenant)
	}
	adapter, ok := s.registry.Get(req.EntityKind)
	if !ok {
		return "", rejectf(ErrUnknownEntity, "%q", req.EntityKind)
	}
	exportFormat, err := ParseExportFormat(req.Format)
	if err != nil {
		return "", reject(err)
	}

	filters := req.Filters.Clone()
	if len(req.SelectedIDs) > 0 {
		filters.SelectedIDs = append([]string(nil), req.SelectedIDs...)
	}
	if err := filters.Validate(); err != nil {
		return "", reject(err)
	}
	if v, ok := adapter.(FilterValidator); ok && !filters.HasSelection() {
		if err := v.ValidateFilters(filters); err != nil {
			return "", reject(err)
		}
	}

	job := s.newJob(req.Tenant, OperationExport, req.EntityKind)
	job.Format = exportFormat
	job.Filters = &filters

	if err := s.submit(ctx, job); err != nil {
		return "", err
	}

	s.logger.Info("export enqueued",
		"job_id", job.ID,
		"organization_id", job.OrganizationID,
		"entity_kind", job.EntityKind,
		"format", exportFormat,
		"selected_ids", len(filters.SelectedIDs),
	)
	return job.ID, nil
}

func (s *Service) newJob(tenant Tenant, op OperationType, kind EntityKind) Job {
	return Job{
		ID:             uuid.NewString(),
		OrganizationID: tenant.OrganizationID,
		OperationType:  op,
		EntityKind:     kind,
		Status:         StatusPending,
		CreatedAt:      s.now().UTC(),
		RequestedBy:    tenant.RequestedBy,
	}
}

// submit persists the job and hands it to the pool. A job the pool refuses
// is removed again so a rejection never leaves a job behind.
func (s *Service) submit(ctx context.Context, job Job) error {
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if err := s.pool.Submit(job.ID); err != nil {
		if delErr := s.jobs.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			s.logger.Error("remove rejected job", "job_id", job.ID, "error", delErr)
		}
		return reject(err)
	}
	return nil
}

// readUpload copies at most maxSize bytes and rejects empty bodies.
func readUpload(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return nil, ErrEmptyUpload
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		if errors.Is(err, ErrUploadTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, maxSize)
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))) == 0 {
		return nil, ErrEmptyUpload
	}
	return data, nil
}
