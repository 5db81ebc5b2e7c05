package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"stockbench/config"
	"stockbench/units"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func i64(n int64) *int64     { return &n }
func f64(v float64) *float64 { return &v }
func strp(s string) *string  { return &s }

func mpns(items []*InventoryItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.MPN
	}
	return out
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// insertItem seeds a catalog row the way the external catalog tooling
// would.
func insertItem(t *testing.T, db *DB, it *InventoryItem) int64 {
	t.Helper()
	res, err := db.Exec(db.Q(`INSERT INTO inventory (mpn, category, footprint, value, location, quantity, staged, comments) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		it.MPN, string(it.Category), nullable(it.Footprint), nullable(it.Value), it.Location, nullable(it.Quantity), nullable(it.Staged), it.Comments)
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("insert item id: %v", err)
	}
	return id
}

func getStaged(t *testing.T, db *DB, id int64) *int64 {
	t.Helper()
	it, err := db.GetItem(id)
	if err != nil {
		t.Fatalf("get item %d: %v", id, err)
	}
	return it.Staged
}

// --- Staging ledger ---

func TestAdjustStagedClamp(t *testing.T) {
	db := testDB(t)
	id := insertItem(t, db, &InventoryItem{MPN: "R-0001", Category: units.Resistor, Quantity: i64(3)})

	for want := int64(1); want <= 3; want++ {
		got, err := db.AdjustStaged(id, +1)
		if err != nil {
			t.Fatalf("adjust +1 (step %d): %v", want, err)
		}
		if got != want {
			t.Errorf("staged after step %d = %d, want %d", want, got, want)
		}
	}

	// Fourth increment would exceed quantity: rejected, row untouched.
	_, err := db.AdjustStaged(id, +1)
	if !errors.Is(err, ErrStagingRejected) {
		t.Fatalf("adjust past quantity: err = %v, want ErrStagingRejected", err)
	}
	if s := getStaged(t, db, id); s == nil || *s != 3 {
		t.Errorf("staged after rejection = %v, want 3", s)
	}

	for want := int64(2); want >= 0; want-- {
		got, err := db.AdjustStaged(id, -1)
		if err != nil {
			t.Fatalf("adjust -1: %v", err)
		}
		if got != want {
			t.Errorf("staged = %d, want %d", got, want)
		}
	}

	// Decrement at zero is an idempotent no-op.
	_, err = db.AdjustStaged(id, -1)
	if !errors.Is(err, ErrStagingRejected) {
		t.Fatalf("adjust below zero: err = %v, want ErrStagingRejected", err)
	}
	if s := getStaged(t, db, id); s == nil || *s != 0 {
		t.Errorf("staged after rejected decrement = %v, want 0", s)
	}
}

func TestAdjustStagedNullQuantity(t *testing.T) {
	db := testDB(t)
	id := insertItem(t, db, &InventoryItem{MPN: "X-0001", Category: units.CapCeramic})

	_, err := db.AdjustStaged(id, +1)
	if !errors.Is(err, ErrStagingRejected) {
		t.Fatalf("adjust with null quantity: err = %v, want ErrStagingRejected", err)
	}
	if s := getStaged(t, db, id); s != nil {
		t.Errorf("staged = %v, want nil", s)
	}
}

func TestAdjustStagedArbitraryDelta(t *testing.T) {
	db := testDB(t)
	id := insertItem(t, db, &InventoryItem{MPN: "C-0001", Category: units.CapElectro, Quantity: i64(10)})

	got, err := db.AdjustStaged(id, +7)
	if err != nil {
		t.Fatalf("adjust +7: %v", err)
	}
	if got != 7 {
		t.Errorf("staged = %d, want 7", got)
	}

	if _, err := db.AdjustStaged(id, +4); !errors.Is(err, ErrStagingRejected) {
		t.Fatalf("adjust +4 past bound: err = %v, want ErrStagingRejected", err)
	}

	got, err = db.AdjustStaged(id, -7)
	if err != nil {
		t.Fatalf("adjust -7: %v", err)
	}
	if got != 0 {
		t.Errorf("staged = %d, want 0", got)
	}
}

func TestAdjustStagedMissingItem(t *testing.T) {
	db := testDB(t)
	if _, err := db.AdjustStaged(9999, +1); !errors.Is(err, ErrStagingRejected) {
		t.Fatalf("adjust missing item: err = %v, want ErrStagingRejected", err)
	}
}

func TestAdjustStagedConcurrent(t *testing.T) {
	db := testDB(t)
	const quantity = 40
	id := insertItem(t, db, &InventoryItem{MPN: "R-0050", Category: units.Resistor, Quantity: i64(quantity)})

	// 80 concurrent increments against a bound of 40: exactly 40 must
	// succeed and the rest must reject, with no lost updates.
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, rejections := 0, 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := db.AdjustStaged(id, +1)
				mu.Lock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrStagingRejected):
					rejections++
				default:
					t.Errorf("adjust: %v", err)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != quantity {
		t.Errorf("successes = %d, want %d", successes, quantity)
	}
	if rejections != 80-quantity {
		t.Errorf("rejections = %d, want %d", rejections, 80-quantity)
	}
	if s := getStaged(t, db, id); s == nil || *s != quantity {
		t.Errorf("staged = %v, want %d", s, quantity)
	}
}

func TestCommitStaged(t *testing.T) {
	db := testDB(t)
	a := insertItem(t, db, &InventoryItem{MPN: "A", Category: units.Resistor, Quantity: i64(5), Staged: i64(3)})
	// B's staged exceeds quantity: a stale/invalid row the commit must
	// leave alone.
	b := insertItem(t, db, &InventoryItem{MPN: "B", Category: units.Resistor, Quantity: i64(2), Staged: i64(3)})
	c := insertItem(t, db, &InventoryItem{MPN: "C", Category: units.Resistor, Quantity: i64(4)})

	receipt, err := db.CommitStaged("")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if receipt.Items != 1 {
		t.Errorf("receipt.Items = %d, want 1", receipt.Items)
	}
	if receipt.BatchID == "" {
		t.Error("receipt.BatchID should be set")
	}

	got, _ := db.GetItem(a)
	if got.Quantity == nil || *got.Quantity != 2 {
		t.Errorf("A quantity = %v, want 2", got.Quantity)
	}
	if got.Staged != nil {
		t.Errorf("A staged = %v, want nil", got.Staged)
	}

	got, _ = db.GetItem(b)
	if got.Quantity == nil || *got.Quantity != 2 {
		t.Errorf("B quantity = %v, want 2 (untouched)", got.Quantity)
	}
	if got.Staged == nil || *got.Staged != 3 {
		t.Errorf("B staged = %v, want 3 (untouched)", got.Staged)
	}

	got, _ = db.GetItem(c)
	if got.Quantity == nil || *got.Quantity != 4 {
		t.Errorf("C quantity = %v, want 4 (nothing staged)", got.Quantity)
	}
}

func TestCommitStagedIgnoresZeroStaged(t *testing.T) {
	db := testDB(t)
	a := insertItem(t, db, &InventoryItem{MPN: "A", Category: units.Resistor, Quantity: i64(5), Staged: i64(2)})
	// Staged back down to zero before the commit: nothing reserved, so
	// the row is not part of the batch and must not pad its count.
	z := insertItem(t, db, &InventoryItem{MPN: "Z", Category: units.Resistor, Quantity: i64(9), Staged: i64(0)})

	receipt, err := db.CommitStaged("")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if receipt.Items != 1 {
		t.Errorf("receipt.Items = %d, want 1", receipt.Items)
	}

	got, _ := db.GetItem(a)
	if got.Quantity == nil || *got.Quantity != 3 {
		t.Errorf("A quantity = %v, want 3", got.Quantity)
	}

	got, _ = db.GetItem(z)
	if got.Quantity == nil || *got.Quantity != 9 {
		t.Errorf("Z quantity = %v, want 9 (untouched)", got.Quantity)
	}
	if got.Staged == nil || *got.Staged != 0 {
		t.Errorf("Z staged = %v, want 0 (untouched)", got.Staged)
	}
}

func TestCommitStagedOutbox(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "A", Category: units.Resistor, Quantity: i64(5), Staged: i64(2)})

	receipt, err := db.CommitStaged("stock.commits")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("outbox len = %d, want 1", len(msgs))
	}
	if msgs[0].Topic != "stock.commits" {
		t.Errorf("topic = %q, want %q", msgs[0].Topic, "stock.commits")
	}
	if msgs[0].MsgType != "staging-committed" {
		t.Errorf("msg_type = %q, want %q", msgs[0].MsgType, "staging-committed")
	}

	var published CommitReceipt
	if err := json.Unmarshal(msgs[0].Payload, &published); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if published.BatchID != receipt.BatchID {
		t.Errorf("payload batch = %q, want %q", published.BatchID, receipt.BatchID)
	}
	if published.Items != 1 {
		t.Errorf("payload items = %d, want 1", published.Items)
	}
}

func TestCommitStagedWithoutTopicSkipsOutbox(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "A", Category: units.Resistor, Quantity: i64(5), Staged: i64(2)})

	if _, err := db.CommitStaged(""); err != nil {
		t.Fatalf("commit: %v", err)
	}
	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("outbox len = %d, want 0", len(msgs))
	}
}

// --- Search ---

func seedSearchFixture(t *testing.T, db *DB) {
	t.Helper()
	insertItem(t, db, &InventoryItem{MPN: "RES-47K-0603", Category: units.Resistor, Footprint: strp("0603"), Value: f64(47000), Quantity: i64(100)})
	insertItem(t, db, &InventoryItem{MPN: "RES-47K-AXIAL", Category: units.Resistor, Value: f64(47000), Quantity: i64(10), Comments: "spare 47k pulls"})
	insertItem(t, db, &InventoryItem{MPN: "CAP-100N", Category: units.CapCeramic, Footprint: strp("0805"), Value: f64(100e-9), Quantity: i64(500)})
	insertItem(t, db, &InventoryItem{MPN: "IND-10U", Category: units.Inductor, Footprint: strp(""), Value: f64(10e-6)})
	insertItem(t, db, &InventoryItem{MPN: "MISC-47K-NOTE", Category: units.Category("Hardware"), Comments: "bag marked 47K"})
}

func TestSearchFilterComposition(t *testing.T) {
	db := testDB(t)
	seedSearchFixture(t, db)

	// All categories, footprint absent, substring "47k" in mpn,
	// category or comments, case-insensitively.
	items, err := db.SearchItems(&SearchQuery{Category: "all", Footprint: NoFootprint, Search: "47k"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	// Default order is mpn descending.
	if items[0].MPN != "RES-47K-AXIAL" || items[1].MPN != "MISC-47K-NOTE" {
		t.Errorf("order = [%s, %s], want [RES-47K-AXIAL, MISC-47K-NOTE]", items[0].MPN, items[1].MPN)
	}
	for _, it := range items {
		if it.Footprint != nil && *it.Footprint != "" {
			t.Errorf("%s has footprint %q, want absent", it.MPN, *it.Footprint)
		}
	}
}

func TestSearchCategoryExactMatch(t *testing.T) {
	db := testDB(t)
	seedSearchFixture(t, db)

	items, err := db.SearchItems(&SearchQuery{Category: "Resistor"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Category != units.Resistor {
			t.Errorf("category = %q, want Resistor", it.Category)
		}
	}
}

func TestSearchFootprintExactMatch(t *testing.T) {
	db := testDB(t)
	seedSearchFixture(t, db)

	items, err := db.SearchItems(&SearchQuery{Footprint: "0603"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].MPN != "RES-47K-0603" {
		t.Fatalf("items = %v, want just RES-47K-0603", len(items))
	}
}

func TestSearchValueBounds(t *testing.T) {
	db := testDB(t)
	seedSearchFixture(t, db)

	items, err := db.SearchItems(&SearchQuery{MinValue: "1k", MaxValue: "100k"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2 (both 47k resistors)", len(items))
	}

	// A malformed bound is dropped, not an error: only the valid upper
	// bound applies, which leaves just the 100n cap.
	items, err = db.SearchItems(&SearchQuery{MinValue: "not-a-number", MaxValue: "200n"})
	if err != nil {
		t.Fatalf("search with bad bound: %v", err)
	}
	if len(items) != 1 || items[0].MPN != "CAP-100N" {
		t.Fatalf("len = %d, want just CAP-100N", len(items))
	}
}

func TestSearchStockFlags(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "A", Category: units.Resistor, Quantity: i64(5)})
	insertItem(t, db, &InventoryItem{MPN: "B", Category: units.Resistor, Quantity: i64(0)})
	insertItem(t, db, &InventoryItem{MPN: "C", Category: units.Resistor})
	insertItem(t, db, &InventoryItem{MPN: "D", Category: units.Resistor, Quantity: i64(9), Staged: i64(2)})

	items, err := db.SearchItems(&SearchQuery{InStock: true})
	if err != nil {
		t.Fatalf("search in_stock: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("in_stock len = %d, want 2", len(items))
	}

	items, err = db.SearchItems(&SearchQuery{InStaging: true})
	if err != nil {
		t.Fatalf("search in_stage: %v", err)
	}
	if len(items) != 1 || items[0].MPN != "D" {
		t.Errorf("in_stage = %d items, want just D", len(items))
	}
}

func TestSearchSortWhitelist(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "AAA", Category: units.Resistor})
	insertItem(t, db, &InventoryItem{MPN: "ZZZ", Category: units.Resistor})

	// Anything outside the whitelist falls back to mpn; dir defaults
	// to descending.
	items, err := db.SearchItems(&SearchQuery{Sort: "id; DROP TABLE inventory", Dir: "sideways"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if items[0].MPN != "ZZZ" {
		t.Errorf("first = %s, want ZZZ (mpn desc)", items[0].MPN)
	}

	items, err = db.SearchItems(&SearchQuery{Sort: "mpn", Dir: "asc"})
	if err != nil {
		t.Fatalf("search asc: %v", err)
	}
	if items[0].MPN != "AAA" {
		t.Errorf("first = %s, want AAA (mpn asc)", items[0].MPN)
	}
}

func TestSearchResultCap(t *testing.T) {
	db := testDB(t)
	for i := 0; i < SearchLimit+20; i++ {
		insertItem(t, db, &InventoryItem{MPN: fmt.Sprintf("R-%04d", i), Category: units.Resistor})
	}
	items, err := db.SearchItems(&SearchQuery{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != SearchLimit {
		t.Errorf("len = %d, want %d", len(items), SearchLimit)
	}
}

func TestSearchWildcardsAreLiteral(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "PLAIN", Category: units.Resistor})

	// The search literal is bound as a parameter; query syntax in it
	// must not break the statement.
	items, err := db.SearchItems(&SearchQuery{Search: `'; DROP TABLE inventory; --`})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("len = %d, want 0", len(items))
	}
	// Table still there.
	if _, err := db.SearchItems(&SearchQuery{}); err != nil {
		t.Fatalf("follow-up search: %v", err)
	}
}

func TestSearchMetacharactersAreLiteral(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "ABC-100", Category: units.Resistor})
	insertItem(t, db, &InventoryItem{MPN: "AXC-100", Category: units.Resistor})
	insertItem(t, db, &InventoryItem{MPN: "A_C-100", Category: units.Resistor})
	insertItem(t, db, &InventoryItem{MPN: "R-5", Category: units.Resistor, Comments: "50% tolerance"})

	// "_" and "%" in the literal are text, not single/multi-char
	// wildcards: "A_C" must not match ABC-100 or AXC-100.
	items, err := db.SearchItems(&SearchQuery{Search: "A_C"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].MPN != "A_C-100" {
		t.Errorf("search A_C = %v, want just A_C-100", mpns(items))
	}

	items, err = db.SearchItems(&SearchQuery{Search: "50%"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].MPN != "R-5" {
		t.Errorf("search 50%% = %v, want just R-5", mpns(items))
	}

	// A lone backslash is also literal text.
	items, err = db.SearchItems(&SearchQuery{Search: `\`})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("search backslash = %v, want none", mpns(items))
	}
}

// --- Filter enumeration ---

func TestDistinctFootprintsArrangement(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "R1", Category: units.Resistor, Footprint: strp("0603")})
	insertItem(t, db, &InventoryItem{MPN: "R2", Category: units.Resistor, Footprint: strp("0805")})
	insertItem(t, db, &InventoryItem{MPN: "R3", Category: units.Resistor})
	insertItem(t, db, &InventoryItem{MPN: "C1", Category: units.CapCeramic, Footprint: strp("1206")})

	// Current selection leads, then the sentinel, then the rest in
	// natural order. Cross-filtered by category, so 1206 is absent.
	got, err := db.DistinctFootprints("Resistor", "0805")
	if err != nil {
		t.Fatalf("distinct footprints: %v", err)
	}
	want := []string{"0805", AllFootprints, "0603", NoFootprint}
	assertStrings(t, got, want)

	// A sentinel selection is not moved to the front.
	got, err = db.DistinctFootprints("Resistor", AllFootprints)
	if err != nil {
		t.Fatalf("distinct footprints: %v", err)
	}
	want = []string{AllFootprints, "0603", "0805", NoFootprint}
	assertStrings(t, got, want)
}

func TestDistinctCategoriesCrossFilter(t *testing.T) {
	db := testDB(t)
	insertItem(t, db, &InventoryItem{MPN: "R1", Category: units.Resistor, Footprint: strp("0603")})
	insertItem(t, db, &InventoryItem{MPN: "C1", Category: units.CapCeramic, Footprint: strp("0805")})
	insertItem(t, db, &InventoryItem{MPN: "L1", Category: units.Inductor})

	got, err := db.DistinctCategories("0603", "all")
	if err != nil {
		t.Fatalf("distinct categories: %v", err)
	}
	assertStrings(t, got, []string{AllCategories, "Resistor"})

	// "No Footprint" cross-filters to items with an absent footprint.
	got, err = db.DistinctCategories(NoFootprint, "")
	if err != nil {
		t.Fatalf("distinct categories: %v", err)
	}
	assertStrings(t, got, []string{AllCategories, "Inductor"})

	// A selection that fell out of the cross-filtered set is not
	// resurrected at the front.
	got, err = db.DistinctCategories("0603", "Inductor")
	if err != nil {
		t.Fatalf("distinct categories: %v", err)
	}
	assertStrings(t, got, []string{AllCategories, "Resistor"})
}

func assertStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// --- Read model ---

func TestGetItemStagedAnomaly(t *testing.T) {
	db := testDB(t)
	// A negative staged count cannot be produced through AdjustStaged;
	// seed it directly the way a bad administrative edit would.
	id := insertItem(t, db, &InventoryItem{MPN: "BAD", Category: units.Resistor, Quantity: i64(5), Staged: i64(-2)})

	it, err := db.GetItem(id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !it.StagedAnomaly() {
		t.Error("StagedAnomaly() should report true for negative staged")
	}

	ok := insertItem(t, db, &InventoryItem{MPN: "OK", Category: units.Resistor, Quantity: i64(5), Staged: i64(2)})
	it, _ = db.GetItem(ok)
	if it.StagedAnomaly() {
		t.Error("StagedAnomaly() should report false for non-negative staged")
	}
}

// --- Outbox ---

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.EnqueueOutbox("t1", []byte(`{"n":1}`), "staging-committed"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.EnqueueOutbox("t1", []byte(`{"n":2}`), "staging-committed"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("pending = %d, want 2", len(msgs))
	}

	if err := db.IncrementOutboxRetries(msgs[0].ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := db.AckOutbox(msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	msgs, err = db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list after ack: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("pending after ack = %d, want 1", len(msgs))
	}
	if string(msgs[0].Payload) != `{"n":2}` {
		t.Errorf("payload = %s, want second message", msgs[0].Payload)
	}
}
