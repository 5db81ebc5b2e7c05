package store

import (
	"database/sql"
	"fmt"
	"strings"

	"stockbench/units"
)

// InventoryItem is one stocked part. Rows are owned by external
// catalog tooling; stockbench reads filtered subsets and mutates only
// the staged/quantity pair.
type InventoryItem struct {
	ID        int64          `json:"id"`
	MPN       string         `json:"mpn"`
	Category  units.Category `json:"category"`
	Footprint *string        `json:"footprint"`
	Value     *float64       `json:"value"`
	Location  string         `json:"location"`
	Quantity  *int64         `json:"quantity"`
	Staged    *int64         `json:"staged"`
	Comments  string         `json:"comments"`
}

// StagedAnomaly reports a negative staged count read back from the
// store. Not reachable through AdjustStaged; rendered as an error
// marker rather than a quantity.
func (it *InventoryItem) StagedAnomaly() bool {
	return it.Staged != nil && *it.Staged < 0
}

const itemSelectCols = `id, mpn, category, footprint, value, location, quantity, staged, comments`

func scanItem(row interface{ Scan(...any) error }) (*InventoryItem, error) {
	var it InventoryItem
	var mpn, footprint, location, comments sql.NullString
	var category string
	var value sql.NullFloat64
	var quantity, staged sql.NullInt64

	err := row.Scan(&it.ID, &mpn, &category, &footprint, &value, &location, &quantity, &staged, &comments)
	if err != nil {
		return nil, err
	}
	it.MPN = mpn.String
	it.Category = units.Category(category)
	it.Location = location.String
	it.Comments = comments.String
	if footprint.Valid {
		it.Footprint = &footprint.String
	}
	if value.Valid {
		it.Value = &value.Float64
	}
	if quantity.Valid {
		it.Quantity = &quantity.Int64
	}
	if staged.Valid {
		it.Staged = &staged.Int64
	}
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]*InventoryItem, error) {
	var items []*InventoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (db *DB) GetItem(id int64) (*InventoryItem, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM inventory WHERE id=?`, itemSelectCols)), id)
	return scanItem(row)
}

// DistinctCategories returns the category selector options,
// cross-filtered by the current footprint selection. The currently
// selected category leads the list when it is a real value; the "all"
// sentinel follows (or leads, when the selection is itself a sentinel).
func (db *DB) DistinctCategories(footprintSel, selected string) ([]string, error) {
	query := `SELECT DISTINCT category FROM inventory`
	var args []any
	if cond, arg, ok := footprintCond(footprintSel); ok {
		query += ` WHERE ` + cond
		if arg != nil {
			args = append(args, arg)
		}
	}
	query += ` ORDER BY category`

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	defer rows.Close()
	values, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	return arrangeOptions(values, selected, AllCategories), nil
}

// DistinctFootprints returns the footprint selector options,
// cross-filtered by the current category selection. Absent footprints
// surface as the "No Footprint" sentinel.
func (db *DB) DistinctFootprints(categorySel, selected string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT COALESCE(NULLIF(footprint,''), '%s') FROM inventory`, NoFootprint)
	var args []any
	if !isAllSentinel(categorySel, AllCategories) {
		query += ` WHERE category = ?`
		args = append(args, strings.TrimSpace(categorySel))
	}
	query += ` ORDER BY 1`

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("distinct footprints: %w", err)
	}
	defer rows.Close()
	values, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	return arrangeOptions(values, selected, AllFootprints), nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var values []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		values = append(values, s)
	}
	return values, rows.Err()
}

// arrangeOptions keeps the caller's current selection visible after a
// selector list regenerates: selection first, the "all" sentinel right
// after it, the rest in query order.
func arrangeOptions(values []string, selected, allSentinel string) []string {
	selected = strings.TrimSpace(selected)
	front := isSentinel(selected)
	if !front {
		found := false
		for _, v := range values {
			if v == selected {
				found = true
				break
			}
		}
		front = !found
	}

	out := make([]string, 0, len(values)+2)
	if !front {
		out = append(out, selected)
	}
	out = append(out, allSentinel)
	for _, v := range values {
		if !front && v == selected {
			continue
		}
		out = append(out, v)
	}
	return out
}

func isSentinel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all",
		strings.ToLower(AllCategories),
		strings.ToLower(AllFootprints),
		strings.ToLower(NoFootprint):
		return true
	}
	return false
}
