package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/service"
	"github.com/seracourt/ripple/internal/store"
)

type MemoryHandler struct {
	retrieval *service.RetrievalService
	revisions domain.RevisionStore
}

func NewMemoryHandler(retrieval *service.RetrievalService, revisions domain.RevisionStore) *MemoryHandler {
	return &MemoryHandler{retrieval: retrieval, revisions: revisions}
}

type recallResponse struct {
	Memories []service.ScoredMemory `json:"memories"`
	Query    string                 `json:"query"`
	Count    int                    `json:"count"`
}

func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing user_id parameter")
		return
	}

	opts := domain.RecallOpts{TopK: service.DefaultRecallTopK}

	if topKStr := r.URL.Query().Get("top_k"); topKStr != "" {
		if topK, err := strconv.Atoi(topKStr); err == nil && topK > 0 {
			opts.TopK = topK
		}
	}

	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		if !domain.ValidMemoryType(typeStr) {
			writeError(w, http.StatusBadRequest, "invalid type parameter")
			return
		}
		mt := domain.MemoryType(typeStr)
		opts.MemoryType = &mt
	}

	if minConfStr := r.URL.Query().Get("min_confidence"); minConfStr != "" {
		if mc, err := strconv.ParseFloat(minConfStr, 32); err == nil {
			opts.MinConfidence = float32(mc)
		}
	}

	results, err := h.retrieval.Recall(r.Context(), userID, query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to recall memories")
		return
	}
	if results == nil {
		results = []service.ScoredMemory{}
	}

	writeJSON(w, http.StatusOK, recallResponse{
		Memories: results,
		Query:    query,
		Count:    len(results),
	})
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	memory, err := h.retrieval.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get memory")
		return
	}

	writeJSON(w, http.StatusOK, memory)
}

type revisionHistoryResponse struct {
	MemoryID  uuid.UUID               `json:"memory_id"`
	Revisions []domain.RevisionRecord `json:"revisions"`
	Count     int                     `json:"count"`
}

// ListRevisions returns a memory's append-only confidence history, newest
// last. The audit trail behind "why does the system believe this now".
func (h *MemoryHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	if _, err := h.retrieval.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get memory")
		return
	}

	revisions, err := h.revisions.GetByMemoryID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list revisions")
		return
	}
	if revisions == nil {
		revisions = []domain.RevisionRecord{}
	}

	writeJSON(w, http.StatusOK, revisionHistoryResponse{
		MemoryID:  id,
		Revisions: revisions,
		Count:     len(revisions),
	})
}
