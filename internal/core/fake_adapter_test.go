package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAdapter is an in-memory "currencies"-like entity keyed by Code.
type fakeAdapter struct {
	kind EntityKind

	mu      sync.Mutex
	records []Entity
	seq     int

	// block makes Create wait until closed or the context ends.
	block chan struct{}
	// panicOn panics when creating this code.
	panicOn string
	// failOn returns an error when creating this code.
	failOn string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{kind: "currencies"}
}

func (a *fakeAdapter) Kind() EntityKind  { return a.kind }
func (a *fakeAdapter) Columns() []string { return []string{"Code", "Name", "Active"} }

func (a *fakeAdapter) ValidateHeader(index HeaderIndex) error {
	if !index.Has("Code") {
		return MissingColumnsError([]string{"Code"})
	}
	return nil
}

func (a *fakeAdapter) ParseRow(row RawRow) (Fields, []FieldError) {
	var errs []FieldError
	code, _ := row.Get("Code")
	name, _ := row.Get("Name")
	active, _ := row.Get("Active")

	if code == "" {
		errs = append(errs, FieldError{Field: "Code", Message: "required field is empty"})
	}
	if name == "" {
		errs = append(errs, FieldError{Field: "Name", Message: "required field is empty"})
	}
	switch strings.ToLower(active) {
	case "", "true", "false":
	default:
		errs = append(errs, FieldError{Field: "Active", Value: active, Message: "must be true or false"})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return Fields{"Code": strings.ToUpper(code), "Name": name, "Active": strings.ToLower(active)}, nil
}

func (a *fakeAdapter) NaturalKey(f Fields) string { return f["Code"] }

func (a *fakeAdapter) FindExisting(_ context.Context, tenant Tenant, key string) (Entity, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.records {
		if e.OrganizationID == tenant.OrganizationID && e.Fields["Code"] == key {
			return e, true, nil
		}
	}
	return Entity{}, false, nil
}

func (a *fakeAdapter) Create(ctx context.Context, tenant Tenant, f Fields) (Entity, error) {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return Entity{}, ctx.Err()
		}
	}
	if a.panicOn != "" && f["Code"] == a.panicOn {
		panic("boom")
	}
	if a.failOn != "" && f["Code"] == a.failOn {
		return Entity{}, fmt.Errorf("insert: duplicate key value violates unique constraint")
	}
	return a.insert(tenant.OrganizationID, f), nil
}

func (a *fakeAdapter) insert(org string, f Fields) Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	e := Entity{
		ID:             fmt.Sprintf("cur-%d", a.seq),
		OrganizationID: org,
		Fields:         f.Clone(),
		CreatedAt:      time.Now().UTC(),
	}
	a.records = append(a.records, e)
	return e
}

func (a *fakeAdapter) Update(_ context.Context, tenant Tenant, existing Entity, f Fields) (Entity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, e := range a.records {
		if e.ID == existing.ID && e.OrganizationID == tenant.OrganizationID {
			a.records[i].Fields = f.Clone()
			return a.records[i], nil
		}
	}
	return Entity{}, fmt.Errorf("record %s vanished", existing.ID)
}

func (a *fakeAdapter) QueryForExport(ctx context.Context, tenant Tenant, filters FilterCriteria, fn func(Entity) error) error {
	a.mu.Lock()
	snapshot := append([]Entity(nil), a.records...)
	a.mu.Unlock()

	selected := make(map[string]bool, len(filters.SelectedIDs))
	for _, id := range filters.SelectedIDs {
		selected[id] = true
	}

	for _, e := range snapshot {
		if e.OrganizationID != tenant.OrganizationID {
			continue
		}
		if filters.HasSelection() {
			if !selected[e.ID] {
				continue
			}
		} else {
			if filters.Search != "" && !strings.Contains(strings.ToLower(e.Fields["Name"]), strings.ToLower(filters.Search)) {
				continue
			}
			if v, ok := filters.Flags["Active"]; ok && (e.Fields["Active"] == "true") != v {
				continue
			}
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (a *fakeAdapter) RenderRow(e Entity) []string {
	return []string{e.Fields["Code"], e.Fields["Name"], e.Fields["Active"]}
}

func (a *fakeAdapter) count(org, code string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.records {
		if e.OrganizationID == org && e.Fields["Code"] == code {
			n++
		}
	}
	return n
}

func (a *fakeAdapter) find(org, code string) []Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Entity
	for _, e := range a.records {
		if e.OrganizationID == org && e.Fields["Code"] == code {
			out = append(out, e)
		}
	}
	return out
}

var (
	tenantA = Tenant{OrganizationID: "org-a", RequestedBy: "alice"}
	tenantB = Tenant{OrganizationID: "org-b", RequestedBy: "bob"}
)

// newTestService builds a started service over memory stores.
func newTestService(t *testing.T, adapter *fakeAdapter, opts Options) *Service {
	t.Helper()
	svc := newUnstartedService(t, adapter, opts)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func newUnstartedService(t *testing.T, adapter *fakeAdapter, opts Options) *Service {
	t.Helper()
	reg := NewRegistry()
	reg.Register(adapter)
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = 1
	}
	svc, err := NewService(Deps{Registry: reg}, opts)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// waitTerminal polls until the job finishes.
func waitTerminal(t *testing.T, svc *Service, tenant Tenant, jobID string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetStatus(context.Background(), tenant, jobID)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if job.Status.IsTerminal() {
			// History is recorded just after the terminal write.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := svc.WaitIdle(ctx); err != nil {
				t.Fatalf("WaitIdle() error = %v", err)
			}
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return Job{}
}

// waitStatus polls until the job reaches status.
func waitStatus(t *testing.T, svc *Service, tenant Tenant, jobID string, status JobStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetStatus(context.Background(), tenant, jobID)
		if err == nil && job.Status == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, status)
}

func importCSV(t *testing.T, svc *Service, tenant Tenant, strategy, body string) Job {
	t.Helper()
	id, err := svc.EnqueueImport(context.Background(), ImportRequest{
		Tenant:     tenant,
		EntityKind: "currencies",
		FileName:   "currencies.csv",
		Reader:     strings.NewReader(body),
		Strategy:   strategy,
	})
	if err != nil {
		t.Fatalf("EnqueueImport() error = %v", err)
	}
	return waitTerminal(t, svc, tenant, id)
}
