package entities

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

// ErrEntityNotFound is returned when an update targets a missing record.
var ErrEntityNotFound = errors.New("entity not found")

// Query selects the entities of one kind for an export. Filter names are
// canonical column names, or ColumnCreatedAt/ColumnUpdatedAt for ranges.
type Query struct {
	OrganizationID string
	Kind           core.EntityKind
	Filters        core.FilterCriteria
	// DateColumns names the columns whose values are DateLayout dates.
	DateColumns map[string]bool
}

// Repository persists entities for every kind. All methods are scoped by
// organization; records of other organizations are invisible.
type Repository interface {
	// FindByKey returns the oldest record with the natural key.
	FindByKey(ctx context.Context, org string, kind core.EntityKind, key string) (core.Entity, bool, error)
	Insert(ctx context.Context, org string, kind core.EntityKind, key string, fields core.Fields) (core.Entity, error)
	Update(ctx context.Context, org string, kind core.EntityKind, id string, fields core.Fields) (core.Entity, error)
	// Scan streams matching records oldest first.
	Scan(ctx context.Context, q Query, fn func(core.Entity) error) error
}

type storedEntity struct {
	entity core.Entity
	key    string
}

// MemoryRepository keeps entities in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string][]*storedEntity
	now     func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string][]*storedEntity),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func bucket(org string, kind core.EntityKind) string {
	return org + "/" + string(kind)
}

func copyEntity(e core.Entity) core.Entity {
	e.Fields = e.Fields.Clone()
	return e
}

func (r *MemoryRepository) FindByKey(_ context.Context, org string, kind core.EntityKind, key string) (core.Entity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.records[bucket(org, kind)] {
		if s.key == key {
			return copyEntity(s.entity), true, nil
		}
	}
	return core.Entity{}, false, nil
}

func (r *MemoryRepository) Insert(_ context.Context, org string, kind core.EntityKind, key string, fields core.Fields) (core.Entity, error) {
	now := r.now()
	e := core.Entity{
		ID:             uuid.NewString(),
		OrganizationID: org,
		Fields:         fields.Clone(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b := bucket(org, kind)
	r.records[b] = append(r.records[b], &storedEntity{entity: e, key: key})
	return copyEntity(e), nil
}

func (r *MemoryRepository) Update(_ context.Context, org string, kind core.EntityKind, id string, fields core.Fields) (core.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.records[bucket(org, kind)] {
		if s.entity.ID == id {
			s.entity.Fields = fields.Clone()
			s.entity.UpdatedAt = r.now()
			return copyEntity(s.entity), nil
		}
	}
	return core.Entity{}, ErrEntityNotFound
}

func (r *MemoryRepository) Scan(ctx context.Context, q Query, fn func(core.Entity) error) error {
	r.mu.RLock()
	stored := r.records[bucket(q.OrganizationID, q.Kind)]
	snapshot := make([]core.Entity, 0, len(stored))
	for _, s := range stored {
		if Matches(s.entity, q) {
			snapshot = append(snapshot, copyEntity(s.entity))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored records of a kind for org.
func (r *MemoryRepository) Count(org string, kind core.EntityKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records[bucket(org, kind)])
}

// Matches applies q's filters to e. An explicit selection replaces every
// other filter.
func Matches(e core.Entity, q Query) bool {
	f := q.Filters
	if f.HasSelection() {
		for _, id := range f.SelectedIDs {
			if id == e.ID {
				return true
			}
		}
		return false
	}

	if f.Search != "" && !containsFold(e.Fields, f.Search) {
		return false
	}
	for name, want := range f.Values {
		if !strings.EqualFold(e.Fields[name], want) {
			return false
		}
	}
	for name, want := range f.Flags {
		if e.Fields[name] != formatBool(want) {
			return false
		}
	}
	for name, r := range f.Ranges {
		t, ok := rangeValue(e, name, q.DateColumns)
		if !ok || !r.Contains(t) {
			return false
		}
	}
	return true
}

func containsFold(fields core.Fields, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range fields {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func rangeValue(e core.Entity, name string, dateColumns map[string]bool) (time.Time, bool) {
	switch name {
	case ColumnCreatedAt:
		return e.CreatedAt, true
	case ColumnUpdatedAt:
		return e.UpdatedAt, true
	}
	if !dateColumns[name] {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, e.Fields[name])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
