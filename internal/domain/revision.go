package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLambda is the open-mindedness coefficient applied when a user
	// has no revision policy of their own.
	DefaultLambda = 0.5
	MinLambda     = 0.1
	MaxLambda     = 0.9

	// DefaultInterruptionCost is the clarification cost c_int used by the
	// VoI gate when no per-user value is configured.
	DefaultInterruptionCost = 0.4
)

// ClampLambda bounds an open-mindedness coefficient to [MinLambda, MaxLambda].
func ClampLambda(lambda float64) float64 {
	if lambda < MinLambda {
		return MinLambda
	}
	if lambda > MaxLambda {
		return MaxLambda
	}
	return lambda
}

// RevisionRecord is one line of a memory's append-only revision history.
// Deleting records is not supported anywhere in the system.
type RevisionRecord struct {
	ID                 uuid.UUID     `json:"id"`
	MemoryID           uuid.UUID     `json:"memory_id"`
	WALEntryID         uuid.UUID     `json:"wal_entry_id"`
	PriorConfidence    float32       `json:"prior_confidence"`
	NewConfidence      float32       `json:"new_confidence"`
	EvidenceConfidence float32       `json:"evidence_confidence"`
	Lambda             float64       `json:"lambda"`
	Classification     ConflictClass `json:"classification"`
	NewStatement       string        `json:"new_statement,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// RevisionPolicy carries the per-user tuning knobs: how readily beliefs move
// (lambda) and how expensive a clarification question is (interruption cost).
type RevisionPolicy struct {
	UserID           uuid.UUID `json:"user_id"`
	Lambda           float64   `json:"lambda"`
	InterruptionCost float64   `json:"interruption_cost"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func DefaultRevisionPolicy(userID uuid.UUID) *RevisionPolicy {
	return &RevisionPolicy{
		UserID:           userID,
		Lambda:           DefaultLambda,
		InterruptionCost: DefaultInterruptionCost,
	}
}

type RevisionStore interface {
	Create(ctx context.Context, r *RevisionRecord) error
	GetByMemoryID(ctx context.Context, memoryID uuid.UUID) ([]RevisionRecord, error)
	CountByMemoryID(ctx context.Context, memoryID uuid.UUID) (int, error)
}

type RevisionPolicyStore interface {
	Upsert(ctx context.Context, p *RevisionPolicy) error
	// GetByUserID returns ErrNotFound when the user has no policy; callers
	// fall back to DefaultRevisionPolicy.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*RevisionPolicy, error)
}
