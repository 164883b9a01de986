package store

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

const (
	// DefaultLimit is the number of runs returned when a query sets none.
	DefaultLimit = 100

	// MaxLimit is the largest page a query may request.
	MaxLimit = 10000

	// MaxIDs bounds Query.IDs so the id list fits one statement's bind limit.
	MaxIDs = 500
)

// ValidSortFields maps sortable query fields to their column names.
var ValidSortFields = map[string]string{
	"started_at":      "started_at",
	"rows":            "rows_total",
	"final_triggered": "final_triggered",
	"failed":          "failed",
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validate validates a query and returns an error if any parameters are invalid.
func Validate(q *Query) error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if _, ok := ValidSortFields[q.SortBy]; q.SortBy != "" && !ok {
		return NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if len(q.IDs) > MaxIDs {
		return NewQueryError(q, fmt.Errorf("at most %d ids per query, got %d", MaxIDs, len(q.IDs)))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	return nil
}

// ApplyDefaults applies default values to a query.
func ApplyDefaults(q *Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "started_at"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// prepare validates q and returns a defaulted copy. A nil query lists everything.
func prepare(q *Query) (*Query, error) {
	if q == nil {
		q = &Query{}
	}
	if err := Validate(q); err != nil {
		return nil, err
	}
	cp := *q
	ApplyDefaults(&cp)
	return &cp, nil
}

// whereClause renders the filters of q. placeholder returns the bind marker
// for the n-th argument, starting at 1.
func whereClause(q *Query, placeholder func(n int) string) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if q.StartTime != nil {
		add("started_at >= %s", q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		add("started_at <= %s", q.EndTime.UnixNano())
	}
	if q.DataType != "" {
		add("data_type = %s", q.DataType)
	}
	if q.Insurer != "" {
		add("insurer = %s", q.Insurer)
	}
	if q.CatalogVersion != "" {
		add("catalog_version = %s", q.CatalogVersion)
	}
	if q.OnlyFailed {
		conditions = append(conditions, "failed > 0")
	}
	if len(q.IDs) > 0 {
		marks := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			args = append(args, id)
			marks[i] = placeholder(len(args))
		}
		conditions = append(conditions, "id IN ("+strings.Join(marks, ", ")+")")
	}

	return strings.Join(conditions, " AND "), args
}

// orderClause renders ORDER BY and pagination for a defaulted query. Ties on the
// sort field are broken by id so pages are stable.
func orderClause(q *Query) string {
	col := ValidSortFields[q.SortBy]
	dir := strings.ToUpper(q.SortOrder)
	s := fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d", col, dir, dir, q.Limit)
	if q.Offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return s
}

func matches(r *Run, q *Query) bool {
	if q.StartTime != nil && r.StartedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.StartedAt.After(*q.EndTime) {
		return false
	}
	if q.DataType != "" && r.DataType != q.DataType {
		return false
	}
	if q.Insurer != "" && r.Insurer != q.Insurer {
		return false
	}
	if q.CatalogVersion != "" && r.CatalogVersion != q.CatalogVersion {
		return false
	}
	if q.OnlyFailed && r.Failed == 0 {
		return false
	}
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, r.ID) {
		return false
	}
	return true
}

func sortRuns(runs []*Run, q *Query) {
	key := func(r *Run) int64 {
		switch q.SortBy {
		case "rows":
			return int64(r.Rows)
		case "final_triggered":
			return int64(r.FinalTriggered)
		case "failed":
			return int64(r.Failed)
		default:
			return r.StartedAt.UnixNano()
		}
	}
	desc := q.SortOrder == "desc"
	sort.SliceStable(runs, func(i, j int) bool {
		ki, kj := key(runs[i]), key(runs[j])
		if ki == kj {
			if desc {
				return runs[i].ID > runs[j].ID
			}
			return runs[i].ID < runs[j].ID
		}
		if desc {
			return ki > kj
		}
		return ki < kj
	})
}

func sortFindings(fs []*Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Trigger < b.Trigger
	})
}
