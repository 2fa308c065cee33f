package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/jedilnik/internal/model"
	"github.com/erazemk/jedilnik/internal/store"
)

// itemView tags a catalog item with its variant for clients.
type itemView struct {
	Type string     `json:"type"`
	Item model.Item `json:"item"`
}

func itemViews(items []model.Item) []itemView {
	views := make([]itemView, len(items))
	for i, item := range items {
		views[i] = itemView{Type: item.TypeTag(), Item: item}
	}
	return views
}

// CatalogHandler serves the durable catalog.
type CatalogHandler struct {
	DB *sql.DB
}

// Approved handles GET /api/catalog.
func (h *CatalogHandler) Approved(w http.ResponseWriter, r *http.Request) {
	items, err := store.FetchApproved(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to fetch catalog", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to fetch catalog")
		return
	}
	jsonResponse(w, http.StatusOK, itemViews(items))
}

// All handles GET /api/catalog/all.
func (h *CatalogHandler) All(w http.ResponseWriter, r *http.Request) {
	items, err := store.FetchAll(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to fetch catalog", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to fetch catalog")
		return
	}
	jsonResponse(w, http.StatusOK, itemViews(items))
}
