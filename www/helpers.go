package www

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"stockbench/store"
	"stockbench/units"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"itemValue": func(it *store.InventoryItem) string {
			if it.Value == nil {
				return ""
			}
			return units.FormatValue(it.Category, *it.Value)
		},
		"itemQty": func(it *store.InventoryItem) string {
			if it.Quantity == nil {
				return ""
			}
			return strconv.FormatInt(*it.Quantity, 10)
		},
		// itemStaged renders a negative staged count as an anomaly
		// marker, never as a quantity.
		"itemStaged": func(it *store.InventoryItem) string {
			if it.Staged == nil {
				return ""
			}
			if it.StagedAnomaly() {
				return "ERR"
			}
			return strconv.FormatInt(*it.Staged, 10)
		},
		"itemFootprint": func(it *store.InventoryItem) string {
			if it.Footprint == nil || *it.Footprint == "" {
				return store.NoFootprint
			}
			return *it.Footprint
		},
	}
}

// renderFragment executes one named partial without the page layout,
// for HTMX swaps.
func (h *Handlers) renderFragment(w http.ResponseWriter, name string, data any) {
	tmpl, ok := h.tmpls["inventory.html"]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("render fragment %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
