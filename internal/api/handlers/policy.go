package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/store"
)

type PolicyHandler struct {
	policies domain.RevisionPolicyStore
}

func NewPolicyHandler(policies domain.RevisionPolicyStore) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// Get returns the user's revision policy. A user who never tuned anything
// gets the defaults back rather than a 404: that is the policy in effect.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	policy, err := h.policies.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, domain.DefaultRevisionPolicy(userID))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get policy")
		return
	}

	writeJSON(w, http.StatusOK, policy)
}

type upsertPolicyRequest struct {
	Lambda           float64 `json:"lambda"`
	InterruptionCost float64 `json:"interruption_cost"`
}

// Upsert stores the tuning knobs. Lambda is validated against the engine's
// clamp range up front instead of being silently adjusted later.
func (h *PolicyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req upsertPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Lambda < domain.MinLambda || req.Lambda > domain.MaxLambda {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("lambda must be between %.1f and %.1f", domain.MinLambda, domain.MaxLambda))
		return
	}
	if req.InterruptionCost <= 0 {
		writeError(w, http.StatusBadRequest, "interruption_cost must be positive")
		return
	}

	policy := &domain.RevisionPolicy{
		UserID:           userID,
		Lambda:           req.Lambda,
		InterruptionCost: req.InterruptionCost,
	}
	if err := h.policies.Upsert(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save policy")
		return
	}

	writeJSON(w, http.StatusOK, policy)
}
