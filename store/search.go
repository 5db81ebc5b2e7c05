package store

import (
	"fmt"
	"strings"

	"stockbench/units"
)

// Selector sentinels. "All ..." means no constraint; "No Footprint"
// means the footprint column is absent, which is a queryable state of
// its own.
const (
	AllCategories = "All Categories"
	AllFootprints = "All Footprints"
	NoFootprint   = "No Footprint"
)

// SearchLimit hard-caps every result set. It is a payload-size guard,
// not pagination.
const SearchLimit = 100

// SearchQuery is the declarative filter request compiled into one
// parameterized SELECT. Empty fields impose no constraint; all
// predicates AND together.
type SearchQuery struct {
	Category  string
	Footprint string
	MinValue  string
	MaxValue  string
	Search    string
	InStock   bool
	InStaging bool
	Sort      string
	Dir       string
}

var sortColumns = map[string]string{
	"mpn":       "mpn",
	"category":  "category",
	"footprint": "footprint",
	"value":     "value",
	"quantity":  "quantity",
}

// SortColumn resolves the sort key, defaulting to mpn for anything
// outside the whitelist.
func (q *SearchQuery) SortColumn() string {
	if col, ok := sortColumns[strings.ToLower(strings.TrimSpace(q.Sort))]; ok {
		return col
	}
	return "mpn"
}

// SortDir resolves the direction; anything but "asc" sorts descending.
func (q *SearchQuery) SortDir() string {
	if strings.EqualFold(strings.TrimSpace(q.Dir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// build compiles the query to SQL with ?-placeholders. User text only
// ever travels through args, never through the query string.
func (q *SearchQuery) build() (string, []any) {
	var conds []string
	var args []any

	if !isAllSentinel(q.Category, AllCategories) {
		conds = append(conds, `category = ?`)
		args = append(args, strings.TrimSpace(q.Category))
	}

	if cond, arg, ok := footprintCond(q.Footprint); ok {
		conds = append(conds, cond)
		if arg != nil {
			args = append(args, arg)
		}
	}

	if q.InStock {
		conds = append(conds, `quantity > 0`)
	}
	if q.InStaging {
		conds = append(conds, `staged > 0`)
	}

	// A bound that fails to parse is dropped, not an error: the user
	// gets the unbounded result instead of a failed request.
	if v, ok := units.ParseValue(q.MinValue); ok {
		conds = append(conds, `value >= ?`)
		args = append(args, v)
	}
	if v, ok := units.ParseValue(q.MaxValue); ok {
		conds = append(conds, `value <= ?`)
		args = append(args, v)
	}

	if s := strings.TrimSpace(q.Search); s != "" {
		conds = append(conds, `(LOWER(COALESCE(mpn,'')) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\' OR LOWER(COALESCE(comments,'')) LIKE ? ESCAPE '\')`)
		pat := "%" + escapeLike(strings.ToLower(s)) + "%"
		args = append(args, pat, pat, pat)
	}

	query := `SELECT ` + itemSelectCols + ` FROM inventory`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += fmt.Sprintf(` ORDER BY %s %s LIMIT %d`, q.SortColumn(), q.SortDir(), SearchLimit)
	return query, args
}

// SearchItems runs the compiled filter query against the catalog.
func (db *DB) SearchItems(q *SearchQuery) ([]*InventoryItem, error) {
	query, args := q.build()
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// likeEscaper neutralizes LIKE metacharacters so a search literal
// matches itself, not a pattern. The predicates declare ESCAPE '\' to
// match.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// isAllSentinel matches the "no constraint" spelling for a selector:
// empty, "all", or the full sentinel, case-insensitively. The original
// form posts a bare lowercase "all".
func isAllSentinel(s, sentinel string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	return t == "" || t == "all" || t == strings.ToLower(sentinel)
}

// footprintCond resolves the three-way footprint selector: no
// constraint, "footprint absent", or exact match. NULL and empty
// string both count as absent so the selector list and result set
// cannot disagree.
func footprintCond(sel string) (cond string, arg any, ok bool) {
	if isAllSentinel(sel, AllFootprints) {
		return "", nil, false
	}
	if strings.EqualFold(strings.TrimSpace(sel), NoFootprint) {
		return `NULLIF(footprint,'') IS NULL`, nil, true
	}
	return `footprint = ?`, strings.TrimSpace(sel), true
}
