package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/store"
)

type CalibrationHandler struct {
	calibration domain.CalibrationStore
}

func NewCalibrationHandler(calibration domain.CalibrationStore) *CalibrationHandler {
	return &CalibrationHandler{calibration: calibration}
}

// Get returns the user's latest Martingale result. 404 means the daily
// recompute has not covered this user yet, not that calibration is broken.
func (h *CalibrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	result, err := h.calibration.GetResult(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no calibration computed for user")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get calibration")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
