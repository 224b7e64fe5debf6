package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/store"
)

type WALHandler struct {
	wal   domain.WALStore
	queue domain.QueueBridge
}

func NewWALHandler(wal domain.WALStore, queue domain.QueueBridge) *WALHandler {
	return &WALHandler{wal: wal, queue: queue}
}

type listWALResponse struct {
	Entries []domain.WALEntry `json:"entries"`
	Count   int               `json:"count"`
}

// List returns entries in one status, oldest first. The status defaults to
// dead_letter, the inspection case this endpoint exists for.
func (h *WALHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(domain.WALStatusDeadLetter)
	}
	if !domain.ValidWALStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid status parameter")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	entries, err := h.wal.ListByStatus(r.Context(), domain.WALStatus(status), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []domain.WALEntry{}
	}

	writeJSON(w, http.StatusOK, listWALResponse{Entries: entries, Count: len(entries)})
}

func (h *WALHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := h.wal.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

type requeueResponse struct {
	Entry *domain.WALEntry `json:"entry"`
	// Enqueued is false when the status reset landed but the queue delivery
	// did not; the sweep picks the entry up from pending either way.
	Enqueued bool `json:"enqueued"`
}

// Requeue is the manual dead-letter intervention: the entry returns to
// pending with a fresh retry budget and a new delivery. Entries in any
// other status are refused.
func (h *WALHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := h.wal.Requeue(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "entry not found")
		case errors.Is(err, store.ErrStatusConflict):
			writeError(w, http.StatusConflict, "only dead_letter entries can be requeued")
		default:
			writeError(w, http.StatusInternalServerError, "failed to requeue entry")
		}
		return
	}

	enqueued := h.queue.Enqueue(r.Context(), id) == nil

	writeJSON(w, http.StatusOK, requeueResponse{Entry: entry, Enqueued: enqueued})
}
