package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/service"
)

type ActionHandler struct {
	gate *service.VoIGate
}

func NewActionHandler(gate *service.VoIGate) *ActionHandler {
	return &ActionHandler{gate: gate}
}

type gateActionRequest struct {
	UserID string         `json:"user_id"`
	Params map[string]any `json:"params,omitempty"`
}

type gateActionResponse struct {
	Decision string           `json:"decision"`
	Result   domain.VoIResult `json:"result"`
	PushBack *domain.PushBack `json:"push_back,omitempty"`
}

// Gate evaluates one tool call. "proceed" means the caller may invoke the
// tool as requested; "clarify" substitutes the push-back for the invocation
// and the caller is expected to surface it instead of acting.
func (h *ActionHandler) Gate(w http.ResponseWriter, r *http.Request) {
	toolName := chi.URLParam(r, "tool")

	var req gateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	outcome, err := h.gate.Gate(r.Context(), userID, toolName, req.Params)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTool) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to evaluate action")
		return
	}

	decision := "proceed"
	if outcome.PushBack != nil {
		decision = "clarify"
	}

	writeJSON(w, http.StatusOK, gateActionResponse{
		Decision: decision,
		Result:   outcome.Result,
		PushBack: outcome.PushBack,
	})
}
