package domain

import (
	"context"

	"github.com/google/uuid"
)

// AlertSink receives one-way operational signals. Delivery (SMS, email,
// pager) is a collaborator concern; implementations here only need to hand
// the signal off. Sinks must not block the caller.
type AlertSink interface {
	// BatchFailure fires when a batch's failure rate crosses the threshold.
	BatchFailure(ctx context.Context, batchID uuid.UUID, processed, failed int, rate float64)
	// ReflectionTrigger fires when a user's Martingale score stays below the
	// low-variance threshold for a fully covered window.
	ReflectionTrigger(ctx context.Context, userID uuid.UUID, result *MartingaleResult)
	// DeadLetter fires when an entry exhausts its retries.
	DeadLetter(ctx context.Context, entryID uuid.UUID, retryCount int, lastError string)
}
