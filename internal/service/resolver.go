package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/store"
)

// entitySimilarityThreshold is the cosine floor for treating a new mention
// as an alias of an existing entity rather than a new node.
const entitySimilarityThreshold = 0.85

// EntityResolver deduplicates entity mentions into canonical nodes. "Sarah",
// "Sarah Chen" and "my manager Sarah" should all land on one entity; the
// resolution cascade is exact match, then alias match, then name-embedding
// similarity, then a fresh node.
type EntityResolver struct {
	entityStore domain.EntityStore
	embedder    domain.EmbeddingClient
	logger      *zap.Logger
}

func NewEntityResolver(entityStore domain.EntityStore, embedder domain.EmbeddingClient, logger *zap.Logger) *EntityResolver {
	return &EntityResolver{
		entityStore: entityStore,
		embedder:    embedder,
		logger:      logger,
	}
}

// Resolve maps one extracted mention to a canonical entity, creating it if
// nothing matches. An embedding failure degrades to exact-match-or-create
// rather than failing the resolution.
func (r *EntityResolver) Resolve(ctx context.Context, userID uuid.UUID, extracted domain.ExtractedEntity) (*domain.Entity, error) {
	entity, err := r.entityStore.FindByNameOrAlias(ctx, userID, extracted.Name)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("entity lookup: %w", err)
	}

	nameEmb, embErr := r.embedder.Embed(ctx, extracted.Name)
	if embErr != nil {
		r.logger.Warn("entity name embedding failed, skipping fuzzy match",
			zap.String("name", extracted.Name),
			zap.Error(embErr))
		nameEmb = nil
	}

	if len(nameEmb) > 0 {
		candidates, findErr := r.entityStore.FindByEmbeddingSimilarity(
			ctx, userID, nameEmb, entitySimilarityThreshold, 1)
		if findErr != nil {
			return nil, fmt.Errorf("entity similarity lookup: %w", findErr)
		}
		if len(candidates) > 0 {
			// Same entity under a new surface form; remember the spelling.
			if aliasErr := r.entityStore.AddAlias(ctx, candidates[0].ID, extracted.Name); aliasErr != nil {
				r.logger.Warn("alias record failed",
					zap.String("entity_id", candidates[0].ID.String()),
					zap.Error(aliasErr))
			}
			return &candidates[0], nil
		}
	}

	entity = &domain.Entity{
		UserID:     userID,
		Name:       extracted.Name,
		EntityType: extracted.EntityType,
		Aliases:    []string{},
		Embedding:  nameEmb,
	}
	if createErr := r.entityStore.Create(ctx, entity); createErr != nil {
		return nil, fmt.Errorf("create entity: %w", createErr)
	}
	return entity, nil
}

// LinkEntities resolves each extracted mention and records it against the
// memory. Failures are per-entity: one bad mention never blocks the rest.
func (r *EntityResolver) LinkEntities(ctx context.Context, userID, memoryID uuid.UUID, extracted []domain.ExtractedEntity) []domain.Entity {
	resolved := make([]domain.Entity, 0, len(extracted))
	for _, e := range extracted {
		entity, err := r.Resolve(ctx, userID, e)
		if err != nil {
			r.logger.Warn("entity resolution failed",
				zap.String("name", e.Name),
				zap.Error(err))
			continue
		}

		mention := &domain.EntityMention{
			EntityID:    entity.ID,
			MemoryID:    memoryID,
			MentionType: normalizeMentionType(e.Role),
		}
		if err := r.entityStore.RecordMention(ctx, mention); err != nil {
			r.logger.Warn("mention record failed",
				zap.String("entity_id", entity.ID.String()),
				zap.Error(err))
			continue
		}
		resolved = append(resolved, *entity)
	}
	return resolved
}

func normalizeMentionType(m domain.MentionType) domain.MentionType {
	switch m {
	case domain.MentionSubject, domain.MentionObject, domain.MentionContext:
		return m
	}
	return domain.MentionContext
}
