package domain

import "github.com/google/uuid"

type ConflictClass string

const (
	ConflictHighConfidenceOverride ConflictClass = "HIGH_CONFIDENCE_OVERRIDE"
	ConflictMarginalUpdate         ConflictClass = "MARGINAL_UPDATE"
	ConflictOutlierDetection       ConflictClass = "OUTLIER_DETECTION"
	ConflictPatternViolation       ConflictClass = "PATTERN_VIOLATION"
)

// BeliefConflict is the outcome of classifying one candidate statement
// against one existing memory. Ephemeral: it lives on the revision audit
// record, never as its own row.
type BeliefConflict struct {
	NewStatement     string        `json:"new_statement"`
	ExistingMemoryID uuid.UUID     `json:"existing_memory_id"`
	Classification   ConflictClass `json:"classification"`
	ConfidenceDelta  float32       `json:"confidence_delta"`
}

// CandidateFact is a statement extracted from a raw interaction before any
// graph write. The fast path may set PossibleConflict and ConflictsWith but
// resolution is reserved for the slow path.
type CandidateFact struct {
	Type             MemoryType   `json:"type"`
	Content          string       `json:"content"`
	EvidenceType     EvidenceType `json:"evidence_type"`
	Confidence       float32      `json:"confidence"`
	Embedding        []float32    `json:"-"`
	PossibleConflict bool         `json:"possible_conflict"`
	ConflictsWith    []uuid.UUID  `json:"conflicts_with,omitempty"`
}
