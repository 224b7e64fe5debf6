package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/seracourt/ripple/internal/domain"
)

type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

func (s *EntityStore) Create(ctx context.Context, e *domain.Entity) error {
	var embedding *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO entities (user_id, name, entity_type, aliases, embedding, mention_count)
		 VALUES ($1, $2, $3, $4, $5, 0)
		 ON CONFLICT (user_id, name, entity_type) DO UPDATE
		 SET aliases = ARRAY(SELECT DISTINCT unnest(entities.aliases || EXCLUDED.aliases)),
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		e.UserID, e.Name, e.EntityType, e.Aliases, embedding,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (s *EntityStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, name, entity_type, aliases, mention_count, created_at, updated_at
		 FROM entities WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.UserID, &e.Name, &e.EntityType, &e.Aliases, &e.MentionCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) FindByNameOrAlias(ctx context.Context, userID uuid.UUID, name string) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, name, entity_type, aliases, mention_count, created_at, updated_at
		 FROM entities
		 WHERE user_id = $1 AND (LOWER(name) = LOWER($2) OR LOWER($2) = ANY(SELECT LOWER(unnest(aliases))))`,
		userID, name,
	).Scan(&e.ID, &e.UserID, &e.Name, &e.EntityType, &e.Aliases, &e.MentionCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) FindByEmbeddingSimilarity(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.Entity, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, name, entity_type, aliases, mention_count, created_at, updated_at,
		        1 - (embedding <=> $2) AS similarity
		 FROM entities
		 WHERE user_id = $1
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $2) >= $3
		 ORDER BY similarity DESC
		 LIMIT $4`,
		userID, vec, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("entity similarity query: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		var similarity float32
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.EntityType, &e.Aliases, &e.MentionCount, &e.CreatedAt, &e.UpdatedAt, &similarity); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *EntityStore) AddAlias(ctx context.Context, id uuid.UUID, alias string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE entities
		 SET aliases = ARRAY(SELECT DISTINCT unnest(aliases || ARRAY[$2])),
		     updated_at = NOW()
		 WHERE id = $1`,
		id, alias,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordMention links an entity to a memory and bumps the entity's mention
// counter. Duplicate links are ignored, the counter only moves on new ones.
func (s *EntityStore) RecordMention(ctx context.Context, m *domain.EntityMention) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO entity_mentions (entity_id, memory_id, mention_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (entity_id, memory_id) DO NOTHING`,
		m.EntityID, m.MemoryID, m.MentionType,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	_, err = s.db.Exec(ctx,
		`UPDATE entities SET mention_count = mention_count + 1, updated_at = NOW() WHERE id = $1`,
		m.EntityID,
	)
	return err
}

func (s *EntityStore) GetEntitiesForMemory(ctx context.Context, memoryID uuid.UUID) ([]domain.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.user_id, e.name, e.entity_type, e.aliases, e.mention_count, e.created_at, e.updated_at
		 FROM entities e
		 INNER JOIN entity_mentions em ON em.entity_id = e.id
		 WHERE em.memory_id = $1`,
		memoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.EntityType, &e.Aliases, &e.MentionCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *EntityStore) GetMemoriesForEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx,
		`SELECT m.id, m.user_id, m.type, m.content, m.source, m.evidence_type, m.confidence, m.revision_count, m.created_at, m.updated_at
		 FROM memories m
		 INNER JOIN entity_mentions em ON em.memory_id = m.id
		 WHERE em.entity_id = $1
		 ORDER BY m.confidence DESC, m.created_at DESC
		 LIMIT $2`,
		entityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}
