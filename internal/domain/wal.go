package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WALStatus string

const (
	WALStatusPending    WALStatus = "pending"
	WALStatusProcessing WALStatus = "processing"
	WALStatusCompleted  WALStatus = "completed"
	WALStatusFailed     WALStatus = "failed"
	WALStatusDeadLetter WALStatus = "dead_letter"
)

func ValidWALStatus(s string) bool {
	switch WALStatus(s) {
	case WALStatusPending, WALStatusProcessing, WALStatusCompleted, WALStatusFailed, WALStatusDeadLetter:
		return true
	}
	return false
}

// CanTransition reports whether a worker may move an entry from one status
// to another. dead_letter is terminal: nothing leaves it except the manual
// requeue operation, which resets the entry rather than transitioning it.
func CanTransition(from, to WALStatus) bool {
	switch from {
	case WALStatusPending:
		return to == WALStatusProcessing
	case WALStatusProcessing:
		return to == WALStatusCompleted || to == WALStatusFailed
	case WALStatusFailed:
		return to == WALStatusProcessing || to == WALStatusDeadLetter
	}
	return false
}

// WALEntry is the append-only record of one inbound interaction. Seq is
// assigned by the store in insertion order and gives checkpoints a total
// order over entries.
type WALEntry struct {
	ID             uuid.UUID       `json:"id"`
	Seq            int64           `json:"seq"`
	UserID         uuid.UUID       `json:"user_id"`
	RawPayload     json.RawMessage `json:"raw_payload"`
	Status         WALStatus       `json:"status"`
	RetryCount     int             `json:"retry_count"`
	IdempotencyKey string          `json:"idempotency_key"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// InteractionPayload is the conventional shape of RawPayload. The worker
// tolerates payloads that carry extra fields; only Content is required.
type InteractionPayload struct {
	Content string         `json:"content"`
	Source  string         `json:"source,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type WALStore interface {
	// CreateEntry appends a new entry. A duplicate idempotency key is not
	// an error: the existing entry is returned with created=false and the
	// submitted payload is discarded.
	CreateEntry(ctx context.Context, e *WALEntry) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*WALEntry, error)
	GetPending(ctx context.Context, limit int) ([]WALEntry, error)
	// MarkStatus performs one atomic status move guarded by the expected
	// current status. Lost races surface as ErrStatusConflict from the store.
	MarkStatus(ctx context.Context, id uuid.UUID, from, to WALStatus, retryCount int) error
	RecordError(ctx context.Context, id uuid.UUID, msg string) error
	// ListAfterSeq returns non-terminal entries with seq > afterSeq in seq
	// order; used for checkpoint resume and the pending-scan fallback.
	ListAfterSeq(ctx context.Context, afterSeq int64, statuses []WALStatus, limit int) ([]WALEntry, error)
	ListByStatus(ctx context.Context, status WALStatus, limit int) ([]WALEntry, error)
	// ListStalePending returns pending entries older than the given age,
	// FIFO; the sweep re-enqueues these when the original enqueue failed.
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]WALEntry, error)
	ListRetryable(ctx context.Context, maxRetries int, limit int) ([]WALEntry, error)
	// Requeue is the manual dead-letter intervention: resets the entry to
	// pending with retry_count 0. Only valid from dead_letter.
	Requeue(ctx context.Context, id uuid.UUID) (*WALEntry, error)
}
