package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/entities"
)

// EntityRepository stores every entity kind in one table with the column
// values in a JSONB document.
type EntityRepository struct {
	pool *pgxpool.Pool
}

var _ entities.Repository = (*EntityRepository)(nil)

// NewEntityRepository returns a repository backed by pool.
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

const entityColumns = `id, organization_id, fields, created_at, updated_at`

func (r *EntityRepository) FindByKey(ctx context.Context, org string, kind core.EntityKind, key string) (core.Entity, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE organization_id = $1 AND kind = $2 AND natural_key = $3
		ORDER BY created_at, id
		LIMIT 1`,
		org, string(kind), key,
	)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Entity{}, false, nil
	}
	if err != nil {
		return core.Entity{}, false, fmt.Errorf("find %s by key: %w", kind, err)
	}
	return e, true, nil
}

func (r *EntityRepository) Insert(ctx context.Context, org string, kind core.EntityKind, key string, fields core.Fields) (core.Entity, error) {
	doc, err := json.Marshal(fields)
	if err != nil {
		return core.Entity{}, fmt.Errorf("encode %s fields: %w", kind, err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO entities (id, organization_id, kind, natural_key, fields)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+entityColumns,
		uuid.NewString(), org, string(kind), key, doc,
	)
	e, err := scanEntity(row)
	if err != nil {
		return core.Entity{}, fmt.Errorf("insert %s: %w", kind, err)
	}
	return e, nil
}

func (r *EntityRepository) Update(ctx context.Context, org string, kind core.EntityKind, id string, fields core.Fields) (core.Entity, error) {
	doc, err := json.Marshal(fields)
	if err != nil {
		return core.Entity{}, fmt.Errorf("encode %s fields: %w", kind, err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE entities SET fields = $4, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND kind = $3
		RETURNING `+entityColumns,
		id, org, string(kind), doc,
	)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Entity{}, entities.ErrEntityNotFound
	}
	if err != nil {
		return core.Entity{}, fmt.Errorf("update %s: %w", kind, err)
	}
	return e, nil
}

func (r *EntityRepository) Scan(ctx context.Context, q entities.Query, fn func(core.Entity) error) error {
	sql, args := buildScanQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", q.Kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return fmt.Errorf("scan %s: %w", q.Kind, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// queryBuilder numbers placeholders as arguments are bound.
type queryBuilder struct {
	conds []string
	args  []any
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *queryBuilder) where(format string, values ...any) {
	params := make([]any, len(values))
	for i, v := range values {
		params[i] = b.bind(v)
	}
	b.conds = append(b.conds, fmt.Sprintf(format, params...))
}

// buildScanQuery translates the export filters into SQL with the same
// meaning as entities.Matches.
func buildScanQuery(q entities.Query) (string, []any) {
	b := &queryBuilder{}
	b.where("organization_id = %s", q.OrganizationID)
	b.where("kind = %s", string(q.Kind))

	f := q.Filters
	if f.HasSelection() {
		b.where("id = ANY(%s)", f.SelectedIDs)
	} else {
		if f.Search != "" {
			b.where("EXISTS (SELECT 1 FROM jsonb_each_text(fields) kv WHERE kv.value ILIKE %s)",
				"%"+escapeLike(f.Search)+"%")
		}
		for _, name := range sortedKeys(f.Values) {
			b.where("lower(fields->>%s) = lower(%s)", name, f.Values[name])
		}
		for _, name := range sortedKeys(f.Flags) {
			b.where("fields->>%s = %s", name, strconv.FormatBool(f.Flags[name]))
		}
		for _, name := range sortedKeys(f.Ranges) {
			r := f.Ranges[name]
			col := rangeExpr(b, name, q.DateColumns)
			if col == "" {
				b.conds = append(b.conds, "FALSE")
				continue
			}
			if r.From != nil {
				b.conds = append(b.conds, col+" >= "+b.bind(r.From.UTC()))
			}
			if r.To != nil {
				b.conds = append(b.conds, col+" <= "+b.bind(r.To.UTC()))
			}
		}
	}

	sql := `SELECT ` + entityColumns + ` FROM entities WHERE ` +
		strings.Join(b.conds, " AND ") +
		` ORDER BY created_at, id`
	return sql, b.args
}

// rangeExpr returns a timestamptz expression for a range filter column.
// Date columns that do not hold a DateLayout value compare as NULL.
func rangeExpr(b *queryBuilder, name string, dateColumns map[string]bool) string {
	switch name {
	case entities.ColumnCreatedAt:
		return "created_at"
	case entities.ColumnUpdatedAt:
		return "updated_at"
	}
	if !dateColumns[name] {
		return ""
	}
	p := b.bind(name)
	return fmt.Sprintf(
		`(CASE WHEN fields->>%[1]s ~ '^\d{4}-\d{2}-\d{2}$' THEN (fields->>%[1]s)::date::timestamp AT TIME ZONE 'UTC' END)`,
		p,
	)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scanEntity(row pgx.Row) (core.Entity, error) {
	var e core.Entity
	var doc []byte
	var createdAt, updatedAt time.Time

	if err := row.Scan(&e.ID, &e.OrganizationID, &doc, &createdAt, &updatedAt); err != nil {
		return core.Entity{}, err
	}
	if err := json.Unmarshal(doc, &e.Fields); err != nil {
		return core.Entity{}, fmt.Errorf("decode fields: %w", err)
	}
	e.CreatedAt = createdAt.UTC()
	e.UpdatedAt = updatedAt.UTC()
	return e, nil
}
