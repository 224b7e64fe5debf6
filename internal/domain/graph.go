package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RelationType string

const (
	RelationCausal      RelationType = "causal"
	RelationTemporal    RelationType = "temporal"
	RelationThematic    RelationType = "thematic"
	RelationContradicts RelationType = "contradicts"
	RelationSupports    RelationType = "supports"
	RelationDerivedFrom RelationType = "derived_from"
	RelationSupersedes  RelationType = "supersedes"
)

func ValidRelationType(r string) bool {
	switch RelationType(r) {
	case RelationCausal, RelationTemporal, RelationThematic,
		RelationContradicts, RelationSupports, RelationDerivedFrom, RelationSupersedes:
		return true
	}
	return false
}

// SymmetricRelations indicates which relations are bidirectional; the store
// mirrors these as a reverse edge on insert.
var SymmetricRelations = map[RelationType]bool{
	RelationThematic: true,
	RelationSupports: true,
}

type GraphEdge struct {
	ID           uuid.UUID    `json:"id"`
	SourceID     uuid.UUID    `json:"source_id"`
	TargetID     uuid.UUID    `json:"target_id"`
	RelationType RelationType `json:"relation_type"`
	Strength     float32      `json:"strength"`
	CreatedAt    time.Time    `json:"created_at"`
}

type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityTool         EntityType = "tool"
	EntityConcept      EntityType = "concept"
	EntityLocation     EntityType = "location"
	EntityEvent        EntityType = "event"
	EntityProduct      EntityType = "product"
	EntityOther        EntityType = "other"
)

func ValidEntityType(e string) bool {
	switch EntityType(e) {
	case EntityPerson, EntityOrganization, EntityTool, EntityConcept,
		EntityLocation, EntityEvent, EntityProduct, EntityOther:
		return true
	}
	return false
}

type Entity struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	EntityType   EntityType `json:"entity_type"`
	Aliases      []string   `json:"aliases,omitempty"`
	Embedding    []float32  `json:"-"`
	MentionCount int        `json:"mention_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type MentionType string

const (
	MentionSubject MentionType = "subject"
	MentionObject  MentionType = "object"
	MentionContext MentionType = "context"
)

type EntityMention struct {
	EntityID    uuid.UUID   `json:"entity_id"`
	MemoryID    uuid.UUID   `json:"memory_id"`
	MentionType MentionType `json:"mention_type"`
	CreatedAt   time.Time   `json:"created_at"`
}

type GraphStore interface {
	// CreateEdge upserts: an existing (source, target, relation) keeps the
	// greater strength. Symmetric relations are mirrored.
	CreateEdge(ctx context.Context, edge *GraphEdge) error
	GetEdge(ctx context.Context, sourceID, targetID uuid.UUID, relationType RelationType) (*GraphEdge, error)
	GetNeighbors(ctx context.Context, memoryID uuid.UUID, relationTypes []RelationType) ([]GraphEdge, error)
	CountContradicting(ctx context.Context, memoryID uuid.UUID) (int, error)
}

type EntityStore interface {
	Create(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	FindByNameOrAlias(ctx context.Context, userID uuid.UUID, name string) (*Entity, error)
	FindByEmbeddingSimilarity(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32, limit int) ([]Entity, error)
	AddAlias(ctx context.Context, id uuid.UUID, alias string) error
	RecordMention(ctx context.Context, m *EntityMention) error
	GetEntitiesForMemory(ctx context.Context, memoryID uuid.UUID) ([]Entity, error)
	GetMemoriesForEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]Memory, error)
}

// ExtractedEntity is an LLM extraction result prior to resolution.
type ExtractedEntity struct {
	Name       string      `json:"name"`
	EntityType EntityType  `json:"entity_type"`
	Role       MentionType `json:"role"`
}

// DetectedRelationship is an LLM-proposed edge between a new memory and an
// existing one.
type DetectedRelationship struct {
	TargetID     uuid.UUID    `json:"target_id"`
	RelationType RelationType `json:"relation_type"`
	Strength     float32      `json:"strength"`
	Reason       string       `json:"reason,omitempty"`
}
