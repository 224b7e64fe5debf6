package domain

import (
	"context"

	"github.com/google/uuid"
)

type RecallOpts struct {
	TopK          int
	MemoryType    *MemoryType
	MinConfidence float32
}

type MemoryWithScore struct {
	Memory
	Score float32 `json:"score"`
}

// MemorySearcher is the read-only capability handed to the fast path. It is
// deliberately narrow: nothing reachable through it can mutate the graph.
type MemorySearcher interface {
	Recall(ctx context.Context, userID uuid.UUID, embedding []float32, opts RecallOpts) ([]MemoryWithScore, error)
	FindSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32) ([]MemoryWithScore, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Memory, error)
}

// MemoryStore is the full capability; only the slow path worker holds one.
type MemoryStore interface {
	MemorySearcher
	Create(ctx context.Context, m *Memory) error
	// UpdateConfidence also bumps revision_count; rows are never deleted.
	UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float32) error
	ListRelated(ctx context.Context, memoryID uuid.UUID, limit int) ([]Memory, error)
	ListRulesByUser(ctx context.Context, userID uuid.UUID) ([]Memory, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractedFact is a raw LLM extraction; confidence is assigned from the
// evidence type, not by the model.
type ExtractedFact struct {
	Type         MemoryType   `json:"type"`
	Content      string       `json:"content"`
	EvidenceType EvidenceType `json:"evidence_type"`
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type LLMClient interface {
	ExtractFacts(ctx context.Context, content string) ([]ExtractedFact, error)
	ExtractEntities(ctx context.Context, content string) ([]ExtractedEntity, error)
	DetectRelationships(ctx context.Context, content string, similar []Memory) ([]DetectedRelationship, error)
	CheckContradiction(ctx context.Context, stmtA, stmtB string) (bool, error)
	GenerateAlternatives(ctx context.Context, action string, evidence []string) ([]string, error)
}
