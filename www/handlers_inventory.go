package www

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"stockbench/bus"
	"stockbench/store"
)

func (h *Handlers) handleInventoryPage(w http.ResponseWriter, r *http.Request) {
	categories, err := h.db.DistinctCategories(store.AllFootprints, store.AllCategories)
	if err != nil {
		log.Printf("inventory: categories: %v", err)
		categories = []string{store.AllCategories}
	}
	footprints, err := h.db.DistinctFootprints(store.AllCategories, store.AllFootprints)
	if err != nil {
		log.Printf("inventory: footprints: %v", err)
		footprints = []string{store.AllFootprints}
	}
	h.render(w, "inventory.html", map[string]any{
		"Page":       "inventory",
		"Categories": categories,
		"Footprints": footprints,
	})
}

// searchQueryFromRequest maps the filter form onto the declarative
// query. Field names follow the original form; checkboxes arrive only
// when checked.
func searchQueryFromRequest(r *http.Request) *store.SearchQuery {
	q := r.URL.Query()
	return &store.SearchQuery{
		Category:  q.Get("category"),
		Footprint: q.Get("footprint"),
		MinValue:  q.Get("min_val"),
		MaxValue:  q.Get("max_val"),
		Search:    q.Get("search"),
		InStock:   q.Get("in_stock") != "",
		InStaging: q.Get("in_stage") != "",
		Sort:      q.Get("sort"),
		Dir:       q.Get("dir"),
	}
}

const errorRowFragment = `<tr><td colspan="8" class="error-row">Processing error, try again later.</td></tr>`

func (h *Handlers) handleSearchFragment(w http.ResponseWriter, r *http.Request) {
	items, err := h.db.SearchItems(searchQueryFromRequest(r))
	if err != nil {
		log.Printf("inventory: search: %v", err)
		w.Write([]byte(errorRowFragment))
		return
	}
	h.renderFragment(w, "item_rows", map[string]any{"Items": items})
}

func (h *Handlers) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	values, err := h.db.DistinctCategories(q.Get("footprint"), q.Get("category"))
	if err != nil {
		log.Printf("inventory: category options: %v", err)
		values = []string{store.AllCategories}
	}
	h.renderFragment(w, "options", map[string]any{"Values": values})
}

func (h *Handlers) handleFootprintOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	values, err := h.db.DistinctFootprints(q.Get("category"), q.Get("footprint"))
	if err != nil {
		log.Printf("inventory: footprint options: %v", err)
		values = []string{store.AllFootprints}
	}
	h.renderFragment(w, "options", map[string]any{"Values": values})
}

func (h *Handlers) handleStage(w http.ResponseWriter, r *http.Request) {
	h.handleAdjust(w, r, +1)
}

func (h *Handlers) handleUnstage(w http.ResponseWriter, r *http.Request) {
	h.handleAdjust(w, r, -1)
}

// handleAdjust runs one stage/unstage click and answers with the
// re-rendered row. A bound rejection is a normal outcome: the row
// renders unchanged.
func (h *Handlers) handleAdjust(w http.ResponseWriter, r *http.Request, delta int64) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	staged, err := h.db.AdjustStaged(id, delta)
	switch {
	case err == nil:
		h.events.Emit(bus.Event{
			Type:    bus.EventStagedAdjusted,
			Payload: bus.StagedAdjustedEvent{ItemID: id, Delta: delta, Staged: staged},
		})
	case errors.Is(err, store.ErrStagingRejected):
		h.events.Emit(bus.Event{
			Type:    bus.EventStagingRejected,
			Payload: bus.StagingRejectedEvent{ItemID: id, Delta: delta},
		})
	default:
		log.Printf("inventory: adjust staged %d: %v", id, err)
		http.Error(w, "processing error, try again later", http.StatusInternalServerError)
		return
	}

	item, err := h.db.GetItem(id)
	if err != nil {
		log.Printf("inventory: reload item %d: %v", id, err)
		http.Error(w, "processing error, try again later", http.StatusInternalServerError)
		return
	}
	h.renderFragment(w, "item_row", item)
}

func (h *Handlers) handleCommit(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.db.CommitStaged(h.commitTopic)
	if err != nil {
		log.Printf("inventory: commit staged: %v", err)
		http.Error(w, "processing error, try again later", http.StatusInternalServerError)
		return
	}
	h.events.Emit(bus.Event{
		Type:    bus.EventStagingCommitted,
		Payload: bus.StagingCommittedEvent{BatchID: receipt.BatchID, Items: receipt.Items},
	})
	h.renderFragment(w, "commit_result", receipt)
}

// --- JSON api ---

func (h *Handlers) apiItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.db.SearchItems(searchQueryFromRequest(r))
	if err != nil {
		log.Printf("api: items: %v", err)
		h.jsonError(w, "processing error, try again later", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*store.InventoryItem{}
	}
	h.jsonOK(w, items)
}

func (h *Handlers) apiCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	values, err := h.db.DistinctCategories(q.Get("footprint"), q.Get("category"))
	if err != nil {
		log.Printf("api: categories: %v", err)
		h.jsonError(w, "processing error, try again later", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, values)
}

func (h *Handlers) apiFootprints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	values, err := h.db.DistinctFootprints(q.Get("category"), q.Get("footprint"))
	if err != nil {
		log.Printf("api: footprints: %v", err)
		h.jsonError(w, "processing error, try again later", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, values)
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		h.jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.jsonOK(w, map[string]any{"status": "ok"})
}
