package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryType string

const (
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeDecision   MemoryType = "decision"
	MemoryTypeConstraint MemoryType = "constraint"
)

func ValidMemoryType(t string) bool {
	switch MemoryType(t) {
	case MemoryTypePreference, MemoryTypeFact, MemoryTypeDecision, MemoryTypeConstraint:
		return true
	}
	return false
}

type EvidenceType string

const (
	EvidenceExplicit   EvidenceType = "explicit_statement"
	EvidenceImplicit   EvidenceType = "implicit_inference"
	EvidenceBehavioral EvidenceType = "behavioral_signal"
)

func ValidEvidenceType(e string) bool {
	switch EvidenceType(e) {
	case EvidenceExplicit, EvidenceImplicit, EvidenceBehavioral:
		return true
	}
	return false
}

func (e EvidenceType) ConfidenceRange() (min, max float32) {
	switch e {
	case EvidenceExplicit:
		return 0.85, 0.95
	case EvidenceImplicit:
		return 0.50, 0.75
	case EvidenceBehavioral:
		return 0.30, 0.55
	default:
		return 0.40, 0.60
	}
}

func (e EvidenceType) InitialConfidence() float32 {
	min, max := e.ConfidenceRange()
	return (min + max) / 2
}

// Clamp01 bounds a confidence value to [0,1].
func Clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Memory is a knowledge-graph node. Confidence is the only field revision
// touches; rows are never deleted, history accumulates in revision records.
type Memory struct {
	ID            uuid.UUID    `json:"id"`
	UserID        uuid.UUID    `json:"user_id"`
	Type          MemoryType   `json:"type"`
	Content       string       `json:"content"`
	Embedding     []float32    `json:"-"`
	Source        string       `json:"source,omitempty"`
	EvidenceType  EvidenceType `json:"evidence_type,omitempty"`
	Confidence    float32      `json:"confidence"`
	RevisionCount int          `json:"revision_count"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsRule reports whether the memory is the rule-type that PATTERN_VIOLATION
// checks against.
func (m *Memory) IsRule() bool {
	return m.Type == MemoryTypeConstraint
}
