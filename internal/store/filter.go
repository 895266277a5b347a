package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/router-for-me/PersistedObjects/internal/apperrors"
	"github.com/router-for-me/PersistedObjects/internal/db"
	"github.com/router-for-me/PersistedObjects/internal/fields"
	"github.com/router-for-me/PersistedObjects/internal/model"
	"github.com/router-for-me/PersistedObjects/internal/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pagination limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// FilterOptions selects, orders and pages records. Every referenced field must be a column.
type FilterOptions struct {
	Where          string         // Expression over columns, e.g. `status == "open"`.
	Conditions     map[string]any // Equality conditions; nil values match NULL.
	Search         string         // Case-insensitive substring match across string columns.
	Skip           int            // Rows to skip.
	Limit          int            // Page size; DefaultLimit when zero.
	OrderBy        []string       // Sort keys; a leading '-' sorts descending.
	UseModelOutput bool           // Decode the JSON column and return full records.
	DisableTotal   bool           // Skip the count query.
}

// ListOptions is the subset of FilterOptions used by simple listings. Results are full records.
type ListOptions struct {
	Skip         int
	Limit        int
	OrderBy      []string
	Filters      map[string]any
	Search       string
	DisableTotal bool
}

// FilterResult is one page of records.
type FilterResult struct {
	Items             []Record `json:"items"`
	Total             *int64   `json:"total"`
	Skip              int      `json:"skip"`
	Limit             int      `json:"limit"`
	Fetch             int      `json:"fetch"`
	UseModelOutput    bool     `json:"use_model_output"`
	DisableTotalQuery bool     `json:"disable_total_query"`
}

// List returns a page of full records.
func (s *Store) List(ctx context.Context, opts ListOptions) (*FilterResult, error) {
	return s.Filter(ctx, FilterOptions{
		Conditions:     opts.Filters,
		Search:         opts.Search,
		Skip:           opts.Skip,
		Limit:          opts.Limit,
		OrderBy:        opts.OrderBy,
		UseModelOutput: true,
		DisableTotal:   opts.DisableTotal,
	})
}

// Filter returns a page of records matching opts.
// When UseModelOutput is false only column values and timestamps are returned.
func (s *Store) Filter(ctx context.Context, opts FilterOptions) (*FilterResult, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	if opts.Skip < 0 {
		return nil, apperrors.InvalidField("skip", "must not be negative")
	}
	limit := opts.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 0 || limit > MaxLimit:
		return nil, apperrors.InvalidField("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
	}

	base, err := s.scope(s.conn.WithContext(ctx).Table(s.def.Table()), opts)
	if err != nil {
		return nil, err
	}
	order, err := s.orderBy(opts.OrderBy)
	if err != nil {
		return nil, err
	}

	result := &FilterResult{
		Items:             []Record{},
		Skip:              opts.Skip,
		Limit:             limit,
		UseModelOutput:    opts.UseModelOutput,
		DisableTotalQuery: opts.DisableTotal,
	}
	if !opts.DisableTotal {
		var total int64
		if errCount := base.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
			return nil, fmt.Errorf("store: %s: count: %w", s.def.Table(), errCount)
		}
		result.Total = &total
		if total == 0 {
			return result, nil
		}
	}

	columns := s.shape.ColumnNames()
	if !opts.UseModelOutput {
		columns = columns[:len(columns)-1]
	}
	var rows []map[string]any
	errFind := base.Session(&gorm.Session{}).
		Select(columns).
		Clauses(order).
		Offset(opts.Skip).
		Limit(limit).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("store: %s: list: %w", s.def.Table(), errFind)
	}
	for _, row := range rows {
		result.Items = append(result.Items, s.decode(row, opts.UseModelOutput))
	}
	result.Fetch = len(result.Items)
	return result, nil
}

// Count returns the number of records matching opts, ignoring paging and order.
func (s *Store) Count(ctx context.Context, opts FilterOptions) (int64, error) {
	if err := s.ensureTable(ctx); err != nil {
		return 0, err
	}
	base, err := s.scope(s.conn.WithContext(ctx).Table(s.def.Table()), opts)
	if err != nil {
		return 0, err
	}
	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		return 0, fmt.Errorf("store: %s: count: %w", s.def.Table(), errCount)
	}
	return total, nil
}

// QueryableColumns returns the columns predicates may reference.
func (s *Store) QueryableColumns() query.Columns {
	out := query.Columns{}
	for name, col := range s.shape.QueryableColumns() {
		out[name] = col.Kind
	}
	return out
}

// scope applies conditions, search and the expression filter.
func (s *Store) scope(q *gorm.DB, opts FilterOptions) (*gorm.DB, error) {
	columns := s.QueryableColumns()

	names := make([]string, 0, len(opts.Conditions))
	for name := range opts.Conditions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kind, ok := columns[name]
		if !ok {
			return nil, s.notQueryable(name)
		}
		value, err := fields.Coerce(kind, opts.Conditions[name])
		if err != nil {
			return nil, apperrors.InvalidField(name, err.Error())
		}
		if value == nil {
			q = q.Where(fmt.Sprintf("%s IS NULL", db.QuoteIdent(name)))
			continue
		}
		q = q.Where(clause.Eq{Column: clause.Column{Name: name}, Value: value})
	}

	if search := strings.TrimSpace(opts.Search); search != "" {
		var parts []string
		var args []any
		pattern := db.NormalizeLikePattern(s.conn, "%"+db.EscapeLike(search)+"%")
		for _, col := range s.shape.Columns {
			if col.System || !col.Kind.IsString() {
				continue
			}
			parts = append(parts, db.CaseInsensitiveLikeExpr(s.conn, db.QuoteIdent(col.Name))+` ESCAPE '\'`)
			args = append(args, pattern)
		}
		// Models without promoted string columns ignore the search term.
		if len(parts) > 0 {
			q = q.Where("("+strings.Join(parts, " OR ")+")", args...)
		}
	}

	if strings.TrimSpace(opts.Where) != "" {
		pred, err := query.Compile(opts.Where, columns)
		if err != nil {
			return nil, err
		}
		q = q.Where(pred.SQL, pred.Args...)
	}
	return q, nil
}

// orderBy parses sort keys. The primary key is appended as a tiebreaker.
func (s *Store) orderBy(keys []string) (clause.OrderBy, error) {
	columns := s.QueryableColumns()
	var order clause.OrderBy
	seen := map[string]struct{}{}
	for _, raw := range keys {
		for _, part := range strings.Split(raw, ",") {
			key := strings.TrimSpace(part)
			if key == "" {
				continue
			}
			desc := false
			switch {
			case strings.HasPrefix(key, "-"):
				desc = true
				key = strings.TrimSpace(key[1:])
			case strings.HasPrefix(key, "+"):
				key = strings.TrimSpace(key[1:])
			}
			if _, ok := columns[key]; !ok {
				return order, s.notQueryable(key)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			order.Columns = append(order.Columns, clause.OrderByColumn{Column: clause.Column{Name: key}, Desc: desc})
		}
	}
	if _, ok := seen[s.def.PrimaryKey()]; !ok {
		order.Columns = append(order.Columns, clause.OrderByColumn{Column: clause.Column{Name: s.def.PrimaryKey()}})
	}
	return order, nil
}

func (s *Store) notQueryable(name string) error {
	if _, declared := s.def.Field(name); declared || name == model.BlobColumn {
		return apperrors.InvalidField(name, "blob-only fields cannot be filtered or sorted; index the field to query it")
	}
	return apperrors.InvalidField(name, "unknown field")
}
