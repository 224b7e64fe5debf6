package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BeliefUpdateObservation pairs the revision delta the classifier predicted
// (naive default-lambda estimate at classification time) with the delta the
// revision engine actually applied. One row per applied revision; the
// Martingale score is computed over these.
type BeliefUpdateObservation struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	MemoryID       uuid.UUID `json:"memory_id"`
	WALEntryID     uuid.UUID `json:"wal_entry_id"`
	PredictedDelta float32   `json:"predicted_delta"`
	ActualDelta    float32   `json:"actual_delta"`
	CreatedAt      time.Time `json:"created_at"`
}

// MartingaleResult is the rolling calibration statistic for one user:
// mean squared divergence between predicted and actual belief updates over
// the window. A score that stays below the low-variance threshold across a
// fully covered window fires the reflection trigger.
type MartingaleResult struct {
	UserID             uuid.UUID `json:"user_id"`
	Score              float64   `json:"score"`
	WindowDays         int       `json:"window_days"`
	SampleCount        int       `json:"sample_count"`
	CoverageDays       int       `json:"coverage_days"`
	TriggersReflection bool      `json:"triggers_reflection"`
	ComputedAt         time.Time `json:"computed_at"`
}

type CalibrationStore interface {
	RecordObservation(ctx context.Context, o *BeliefUpdateObservation) error
	// ListObservationsSince returns observations for the user created at or
	// after the cutoff, oldest first.
	ListObservationsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]BeliefUpdateObservation, error)
	ListDistinctUserIDs(ctx context.Context) ([]uuid.UUID, error)
	UpsertResult(ctx context.Context, r *MartingaleResult) error
	GetResult(ctx context.Context, userID uuid.UUID) (*MartingaleResult, error)
}
