package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fields holds the normalized values of one parsed row, keyed by column name.
type Fields map[string]string

// Clone returns a copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Entity is a stored administrative record as seen by the engine.
type Entity struct {
	ID             string
	OrganizationID string
	Fields         Fields
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HeaderIndex maps a normalized header name to its column position.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a lookup that tolerates case, spacing and
// underscore differences between the file header and the column names.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := NormalizeColumn(h)
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// Has reports whether the header contains the column.
func (h HeaderIndex) Has(column string) bool {
	_, ok := h[NormalizeColumn(column)]
	return ok
}

// NormalizeColumn folds a column name for comparison. Case and the
// separators " ", "_" and "-" are ignored.
func NormalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

// RawRow is one data row of an upload. Number is 1-based over data rows.
type RawRow struct {
	Number int
	Cells  []string
	index  HeaderIndex
}

// NewRawRow binds cells to a header index.
func NewRawRow(number int, index HeaderIndex, cells []string) RawRow {
	return RawRow{Number: number, Cells: cells, index: index}
}

// Get returns the trimmed cell for a column and whether the column exists.
func (r RawRow) Get(column string) (string, bool) {
	i, ok := r.index[NormalizeColumn(column)]
	if !ok || i >= len(r.Cells) {
		return "", ok
	}
	return strings.TrimSpace(r.Cells[i]), true
}

// Adapter specializes the engine for one entity kind. Implementations must
// scope every lookup and write to the given tenant.
type Adapter interface {
	Kind() EntityKind
	Columns() []string
	ParseRow(row RawRow) (Fields, []FieldError)
	NaturalKey(fields Fields) string
	FindExisting(ctx context.Context, tenant Tenant, key string) (Entity, bool, error)
	Create(ctx context.Context, tenant Tenant, fields Fields) (Entity, error)
	Update(ctx context.Context, tenant Tenant, existing Entity, fields Fields) (Entity, error)
	QueryForExport(ctx context.Context, tenant Tenant, filters FilterCriteria, fn func(Entity) error) error
	RenderRow(e Entity) []string
}

// FilterValidator is implemented by adapters that restrict which columns
// export filters may name. Errors should wrap ErrInvalidFilters.
type FilterValidator interface {
	ValidateFilters(f FilterCriteria) error
}

// TemplateProvider is implemented by adapters whose import layout differs
// from their export columns.
type TemplateProvider interface {
	ImportColumns() []string
}

// Labeler is implemented by adapters with a display name.
type Labeler interface {
	Label() string
}

// LabelOf returns the display name of a, falling back to its kind.
func LabelOf(a Adapter) string {
	if l, ok := a.(Labeler); ok && l.Label() != "" {
		return l.Label()
	}
	return string(a.Kind())
}

// TemplateColumns returns the header of an empty import file for a.
func TemplateColumns(a Adapter) []string {
	if t, ok := a.(TemplateProvider); ok {
		return t.ImportColumns()
	}
	return a.Columns()
}

// Registry holds one adapter per entity kind.
type Registry struct {
	mu       sync.RWMutex
	adapters map[EntityKind]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[EntityKind]Adapter)}
}

// Register adds an adapter.
// Panics if the kind is already registered.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.Kind()]; exists {
		panic(fmt.Sprintf("entity adapter already registered: %s", a.Kind()))
	}
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind EntityKind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[kind]
	return a, ok
}

// All returns every adapter sorted by kind.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind() < result[j].Kind()
	})
	return result
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
