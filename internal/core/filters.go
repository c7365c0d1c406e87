package core

import (
	"fmt"
	"strings"
	"time"
)

// MaxSelectedIDs bounds an explicit export selection.
const MaxSelectedIDs = 10000

// DateRange is an inclusive time window; either end may be open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// FilterCriteria is the entity-agnostic export filter captured at enqueue
// time and replayed verbatim by the worker. Adapters interpret the named
// entries against their own columns.
type FilterCriteria struct {
	Search      string               `json:"search,omitempty"`
	Values      map[string]string    `json:"values,omitempty"`
	Flags       map[string]bool      `json:"flags,omitempty"`
	Ranges      map[string]DateRange `json:"ranges,omitempty"`
	SelectedIDs []string             `json:"selectedIds,omitempty"`
}

// Validate checks the criteria shape. Adapter-specific column names are not
// checked here.
func (f FilterCriteria) Validate() error {
	for name := range f.Values {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty value filter name", ErrInvalidFilters)
		}
	}
	for name := range f.Flags {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty flag filter name", ErrInvalidFilters)
		}
	}
	for name, r := range f.Ranges {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty range filter name", ErrInvalidFilters)
		}
		if r.From != nil && r.To != nil && r.From.After(*r.To) {
			return fmt.Errorf("%w: range %q starts after it ends", ErrInvalidFilters, name)
		}
	}
	if len(f.SelectedIDs) > MaxSelectedIDs {
		return fmt.Errorf("%w: %d selected ids exceeds limit of %d", ErrInvalidFilters, len(f.SelectedIDs), MaxSelectedIDs)
	}
	for _, id := range f.SelectedIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: blank selected id", ErrInvalidFilters)
		}
	}
	return nil
}

// HasSelection reports whether an explicit ID list was supplied.
func (f FilterCriteria) HasSelection() bool {
	return len(f.SelectedIDs) > 0
}

// Effective returns the criteria the query should actually run with:
// an explicit selection replaces every other filter.
func (f FilterCriteria) Effective() FilterCriteria {
	if !f.HasSelection() {
		return f.Clone()
	}

	seen := make(map[string]struct{}, len(f.SelectedIDs))
	ids := make([]string, 0, len(f.SelectedIDs))
	for _, id := range f.SelectedIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return FilterCriteria{SelectedIDs: ids}
}

// Clone returns a deep copy so the enqueued criteria cannot be mutated by
// the caller after the job is created.
func (f FilterCriteria) Clone() FilterCriteria {
	out := FilterCriteria{Search: f.Search}
	if f.Values != nil {
		out.Values = make(map[string]string, len(f.Values))
		for k, v := range f.Values {
			out.Values[k] = v
		}
	}
	if f.Flags != nil {
		out.Flags = make(map[string]bool, len(f.Flags))
		for k, v := range f.Flags {
			out.Flags[k] = v
		}
	}
	if f.Ranges != nil {
		out.Ranges = make(map[string]DateRange, len(f.Ranges))
		for k, v := range f.Ranges {
			out.Ranges[k] = v
		}
	}
	if f.SelectedIDs != nil {
		out.SelectedIDs = append([]string(nil), f.SelectedIDs...)
	}
	return out
}
