package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

type recordRequest struct {
	ID          string `json:"id"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	Quantity    int    `json:"quantity"`
	Category    string `json:"category"`
	CollarStyle string `json:"collarStyle"`
}

func (req recordRequest) record() inventory.Record {
	return inventory.Record{
		ID:          req.ID,
		Size:        req.Size,
		Color:       req.Color,
		Quantity:    req.Quantity,
		Category:    req.Category,
		CollarStyle: req.CollarStyle,
	}
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type inventoryResponse struct {
	Version   uint64             `json:"version"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Records   []inventory.Record `json:"records"`
}

type groupsResponse struct {
	Version uint64            `json:"version"`
	Groups  []inventory.Group `json:"groups"`
}

type quantityChangeResponse struct {
	Record inventory.Record `json:"record"`
	Level  inventory.Level  `json:"level"`
	Alert  inventory.Alert  `json:"alert"`
}

func (h *Handler) handleListInventory(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	q := r.URL.Query()
	records := h.filterRecords(snap.Records, q.Get("category"), q.Get("color"), q.Get("size"), q.Get("collarStyle"))
	writeJSON(w, http.StatusOK, inventoryResponse{
		Version:   snap.Version,
		UpdatedAt: snap.UpdatedAt,
		Records:   records,
	})
}

// filterRecords keeps records matching every non-empty filter. Category and
// collar match case-insensitively, color after alias normalization.
func (h *Handler) filterRecords(records []inventory.Record, category, color, size, collar string) []inventory.Record {
	out := make([]inventory.Record, 0, len(records))
	for _, rec := range records {
		if category != "" && !strings.EqualFold(rec.Category, strings.TrimSpace(category)) {
			continue
		}
		if color != "" && !h.rules.SameColor(rec.Color, color) {
			continue
		}
		if size != "" && !strings.EqualFold(rec.Size, strings.TrimSpace(size)) {
			continue
		}
		if collar != "" && !strings.EqualFold(rec.CollarStyle, strings.TrimSpace(collar)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (h *Handler) handleInventoryGroups(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupsResponse{
		Version: snap.Version,
		Groups:  inventory.GroupRecords(snap.Records),
	})
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.storage.Create(r.Context(), h.rules.Normalize(req.record()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.refresh(r.Context())

	h.logger.Info("inventory record created",
		zap.String("id", created.ID),
		zap.String("size", created.Size),
		zap.String("color", created.Color),
		zap.String("category", created.Category),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.storage.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	updated, err := h.storage.Update(r.Context(), h.rules.Normalize(req.record()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.refresh(r.Context())

	h.logger.Info("inventory record updated",
		zap.String("id", updated.ID),
		zap.Int("quantity", updated.Quantity),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.storage.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	h.refresh(r.Context())

	h.logger.Info("inventory record deleted",
		zap.String("id", id),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "delta must be a non-zero integer")
		return
	}
	if req.Delta > inventory.MaxAdjustDelta || req.Delta < -inventory.MaxAdjustDelta {
		writeError(w, http.StatusBadRequest, "Invalid request",
			fmt.Sprintf("delta must be between -%d and %d", inventory.MaxAdjustDelta, inventory.MaxAdjustDelta))
		return
	}

	rec, err := h.storage.AdjustQuantity(r.Context(), r.PathValue("id"), req.Delta)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusOK, quantityChangeResponse{
		Record: rec,
		Level:  inventory.LevelOf(rec.Quantity),
		Alert:  inventory.AlertFor(rec),
	})
}

func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "quantity is required")
		return
	}

	id := r.PathValue("id")
	if err := h.storage.SetQuantity(r.Context(), id, *req.Quantity); err != nil {
		writeStoreError(w, err)
		return
	}
	rec, err := h.storage.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.refresh(r.Context())
	writeJSON(w, http.StatusOK, quantityChangeResponse{
		Record: rec,
		Level:  inventory.LevelOf(rec.Quantity),
		Alert:  inventory.AlertFor(rec),
	})
}
