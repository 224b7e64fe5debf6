package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueTask is one consolidation unit handed from the fast path to the slow
// path. MessageID is the broker's handle for acknowledgement; EntryID names
// the WAL entry to consolidate. The WAL row is the source of truth, the task
// is only a pointer to it.
type QueueTask struct {
	MessageID string    `json:"message_id"`
	EntryID   uuid.UUID `json:"entry_id"`
}

// QueueBridge decouples interaction capture from consolidation. Losing a
// task is tolerable: the WAL sweep re-enqueues entries still pending past
// the stale threshold.
type QueueBridge interface {
	Enqueue(ctx context.Context, entryID uuid.UUID) error
	// Dequeue returns up to count tasks for the named consumer, waiting up
	// to block for new ones. A negative block returns immediately.
	Dequeue(ctx context.Context, consumer string, count int64, block time.Duration) ([]QueueTask, error)
	Ack(ctx context.Context, messageID string) error
}
