package entities

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

// Timestamp columns every entity carries. Range filters may name them.
const (
	ColumnID        = "ID"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// Schema is the column layout of one entity kind.
type Schema struct {
	Kind   core.EntityKind
	Label  string
	Fields []FieldSpec
}

// Field finds a column by name, ignoring case and separators.
func (s Schema) Field(name string) (FieldSpec, bool) {
	want := core.NormalizeColumn(name)
	for _, f := range s.Fields {
		if core.NormalizeColumn(f.Name) == want {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// KeyFields returns the columns that make up the natural key.
func (s Schema) KeyFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if !f.Mutable && f.Required {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames lists the column names in file order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func (s Schema) validate() error {
	if s.Kind == "" {
		return fmt.Errorf("schema has no kind")
	}
	if len(s.KeyFields()) == 0 {
		return fmt.Errorf("schema %s has no key field", s.Kind)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		n := core.NormalizeColumn(f.Name)
		if seen[n] {
			return fmt.Errorf("schema %s: duplicate column %q", s.Kind, f.Name)
		}
		seen[n] = true
		if f.Type == FieldEnum && len(f.EnumValues) == 0 {
			return fmt.Errorf("schema %s: enum column %q has no values", s.Kind, f.Name)
		}
	}
	return nil
}

var (
	schemaMu sync.RWMutex
	schemas  = make(map[core.EntityKind]Schema)
)

// register adds a schema to the package catalog.
// Panics on an invalid or duplicate schema; schemas are static.
func register(s Schema) {
	if err := s.validate(); err != nil {
		panic(err)
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	if _, exists := schemas[s.Kind]; exists {
		panic(fmt.Sprintf("schema already registered: %s", s.Kind))
	}
	schemas[s.Kind] = s
}

// Lookup returns the schema for kind.
func Lookup(kind core.EntityKind) (Schema, bool) {
	schemaMu.RLock()
	defer schemaMu.RUnlock()
	s, ok := schemas[kind]
	return s, ok
}

// Schemas returns every schema sorted by kind.
func Schemas() []Schema {
	schemaMu.RLock()
	defer schemaMu.RUnlock()

	out := make([]Schema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Register adds an adapter for every known schema to reg, all backed by repo.
func Register(reg *core.Registry, repo Repository) {
	for _, s := range Schemas() {
		reg.Register(NewAdapter(s, repo))
	}
}

// naturalKey joins the key column values, case-folded.
func naturalKey(s Schema, f core.Fields) string {
	keys := s.KeyFields()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strings.ToLower(f[k.Name])
	}
	return strings.Join(parts, "|")
}
