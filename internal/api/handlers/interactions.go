package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/service"
)

type InteractionHandler struct {
	fastPath *service.FastPathService
}

func NewInteractionHandler(fastPath *service.FastPathService) *InteractionHandler {
	return &InteractionHandler{fastPath: fastPath}
}

type createInteractionRequest struct {
	UserID         string         `json:"user_id"`
	Content        string         `json:"content"`
	Source         string         `json:"source,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// Create runs the fast path: durable WAL append, context recall, candidate
// extraction, queue hand-off. The response never waits on consolidation.
// Replaying the same idempotency key returns the original entry with 200.
func (h *InteractionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	if key == "" {
		key = uuid.NewString()
	}

	result, err := h.fastPath.Ingest(r.Context(), userID, domain.InteractionPayload{
		Content: req.Content,
		Source:  req.Source,
		Meta:    req.Meta,
	}, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record interaction")
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
