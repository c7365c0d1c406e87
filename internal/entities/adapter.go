package entities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/adminjobs/internal/core"
)

// schemaAdapter drives the engine for one Schema over a Repository.
type schemaAdapter struct {
	schema Schema
	repo   Repository
}

// NewAdapter returns a core.Adapter for s.
func NewAdapter(s Schema, repo Repository) core.Adapter {
	return &schemaAdapter{schema: s, repo: repo}
}

func (a *schemaAdapter) Kind() core.EntityKind { return a.schema.Kind }

func (a *schemaAdapter) Label() string { return a.schema.Label }

// Columns is the export header: the record ID, the schema columns and the
// timestamps.
func (a *schemaAdapter) Columns() []string {
	cols := make([]string, 0, len(a.schema.Fields)+3)
	cols = append(cols, ColumnID)
	cols = append(cols, a.schema.FieldNames()...)
	return append(cols, "Created At", "Updated At")
}

func (a *schemaAdapter) ImportColumns() []string {
	return a.schema.FieldNames()
}

func (a *schemaAdapter) ValidateHeader(index core.HeaderIndex) error {
	var missing []string
	for _, f := range a.schema.Fields {
		if f.Required && !index.Has(f.Name) {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return core.MissingColumnsError(missing)
	}
	return nil
}

// ParseRow validates every column present in the upload. Columns absent
// from the header are left out of the result so updates keep their stored
// values.
func (a *schemaAdapter) ParseRow(row core.RawRow) (core.Fields, []core.FieldError) {
	out := make(core.Fields, len(a.schema.Fields))
	var errs []core.FieldError

	for _, spec := range a.schema.Fields {
		raw, present := row.Get(spec.Name)
		raw = cleanCell(raw)

		if raw == "" {
			if spec.Required {
				errs = append(errs, core.FieldError{Field: spec.Name, Message: "required field is empty"})
			} else if present {
				out[spec.Name] = ""
			}
			continue
		}

		v, err := normalizeCell(raw, spec)
		if err != nil {
			errs = append(errs, core.FieldError{Field: spec.Name, Value: raw, Message: err.Error()})
			continue
		}
		out[spec.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (a *schemaAdapter) NaturalKey(f core.Fields) string {
	return naturalKey(a.schema, f)
}

func (a *schemaAdapter) FindExisting(ctx context.Context, tenant core.Tenant, key string) (core.Entity, bool, error) {
	return a.repo.FindByKey(ctx, tenant.OrganizationID, a.schema.Kind, key)
}

func (a *schemaAdapter) Create(ctx context.Context, tenant core.Tenant, f core.Fields) (core.Entity, error) {
	return a.repo.Insert(ctx, tenant.OrganizationID, a.schema.Kind, a.NaturalKey(f), f)
}

// Update overwrites the mutable columns the row supplied.
func (a *schemaAdapter) Update(ctx context.Context, tenant core.Tenant, existing core.Entity, f core.Fields) (core.Entity, error) {
	if existing.OrganizationID != tenant.OrganizationID {
		return core.Entity{}, ErrEntityNotFound
	}

	merged := existing.Fields.Clone()
	for _, spec := range a.schema.Fields {
		if v, ok := f[spec.Name]; ok && spec.Mutable {
			merged[spec.Name] = v
		}
	}
	return a.repo.Update(ctx, tenant.OrganizationID, a.schema.Kind, existing.ID, merged)
}

func (a *schemaAdapter) QueryForExport(ctx context.Context, tenant core.Tenant, filters core.FilterCriteria, fn func(core.Entity) error) error {
	q := Query{
		OrganizationID: tenant.OrganizationID,
		Kind:           a.schema.Kind,
		Filters:        a.resolve(filters),
		DateColumns:    a.dateColumns(),
	}
	return a.repo.Scan(ctx, q, fn)
}

func (a *schemaAdapter) RenderRow(e core.Entity) []string {
	row := make([]string, 0, len(a.schema.Fields)+3)
	row = append(row, e.ID)
	for _, f := range a.schema.Fields {
		row = append(row, e.Fields[f.Name])
	}
	return append(row, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ValidateFilters checks that every named filter targets a column that can
// serve it.
func (a *schemaAdapter) ValidateFilters(f core.FilterCriteria) error {
	for name := range f.Values {
		if _, ok := a.schema.Field(name); !ok {
			return fmt.Errorf("%w: unknown column %q", core.ErrInvalidFilters, name)
		}
	}
	for name := range f.Flags {
		spec, ok := a.schema.Field(name)
		if !ok || spec.Type != FieldBool {
			return fmt.Errorf("%w: %q is not a yes/no column", core.ErrInvalidFilters, name)
		}
	}
	for name := range f.Ranges {
		if timestampColumn(name) != "" {
			continue
		}
		spec, ok := a.schema.Field(name)
		if !ok || spec.Type != FieldDate {
			return fmt.Errorf("%w: %q is not a date column", core.ErrInvalidFilters, name)
		}
	}
	return nil
}

// resolve rewrites filter names to canonical column names. Unknown names
// are dropped; ValidateFilters rejects them at enqueue.
func (a *schemaAdapter) resolve(f core.FilterCriteria) core.FilterCriteria {
	if f.HasSelection() {
		return f
	}

	out := core.FilterCriteria{Search: strings.TrimSpace(f.Search)}
	if len(f.Values) > 0 {
		out.Values = make(map[string]string, len(f.Values))
		for name, v := range f.Values {
			if spec, ok := a.schema.Field(name); ok {
				out.Values[spec.Name] = strings.TrimSpace(v)
			}
		}
	}
	if len(f.Flags) > 0 {
		out.Flags = make(map[string]bool, len(f.Flags))
		for name, v := range f.Flags {
			if spec, ok := a.schema.Field(name); ok && spec.Type == FieldBool {
				out.Flags[spec.Name] = v
			}
		}
	}
	if len(f.Ranges) > 0 {
		out.Ranges = make(map[string]core.DateRange, len(f.Ranges))
		for name, r := range f.Ranges {
			if ts := timestampColumn(name); ts != "" {
				out.Ranges[ts] = r
			} else if spec, ok := a.schema.Field(name); ok && spec.Type == FieldDate {
				out.Ranges[spec.Name] = r
			}
		}
	}
	return out
}

func (a *schemaAdapter) dateColumns() map[string]bool {
	cols := make(map[string]bool)
	for _, f := range a.schema.Fields {
		if f.Type == FieldDate {
			cols[f.Name] = true
		}
	}
	return cols
}

func timestampColumn(name string) string {
	switch core.NormalizeColumn(name) {
	case "createdat":
		return ColumnCreatedAt
	case "updatedat":
		return ColumnUpdatedAt
	}
	return ""
}
