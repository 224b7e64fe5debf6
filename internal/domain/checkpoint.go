package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Checkpoint tracks a worker's progress through one batch. LastEntrySeq is
// advanced synchronously after every entry, so a crash loses at most the
// single in-flight entry. A checkpoint with CompletedAt set is closed;
// LoadLatest only returns open ones.
type Checkpoint struct {
	BatchID          uuid.UUID  `json:"batch_id"`
	WorkerID         string     `json:"worker_id"`
	LastEntryID      *uuid.UUID `json:"last_entry_id,omitempty"`
	LastEntrySeq     int64      `json:"last_entry_seq"`
	EntriesProcessed int        `json:"entries_processed"`
	EntriesFailed    int        `json:"entries_failed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FailureRate returns entries_failed / entries_processed, 0 for an empty batch.
func (c *Checkpoint) FailureRate() float64 {
	if c.EntriesProcessed == 0 {
		return 0
	}
	return float64(c.EntriesFailed) / float64(c.EntriesProcessed)
}

type CheckpointStore interface {
	StartBatch(ctx context.Context, workerID string) (*Checkpoint, error)
	// Advance records one processed entry. Counters and the high-water mark
	// move together in a single update.
	Advance(ctx context.Context, batchID uuid.UUID, entryID uuid.UUID, entrySeq int64, success bool) error
	Complete(ctx context.Context, batchID uuid.UUID) error
	// LoadLatest returns the newest open checkpoint for the worker, or nil
	// when there is nothing to resume.
	LoadLatest(ctx context.Context, workerID string) (*Checkpoint, error)
}
