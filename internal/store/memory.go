package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/seracourt/ripple/internal/domain"
)

type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	var embedding *pgvector.Vector
	if len(m.Embedding) > 0 {
		v := pgvector.NewVector(m.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO memories (user_id, type, content, embedding, source, evidence_type, confidence, revision_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		 RETURNING id, created_at, updated_at`,
		m.UserID, m.Type, m.Content, embedding, m.Source, m.EvidenceType, m.Confidence,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m := &domain.Memory{}
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, type, content, source, evidence_type, confidence, revision_count, created_at, updated_at
		 FROM memories WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.UserID, &m.Type, &m.Content, &m.Source, &m.EvidenceType, &m.Confidence, &m.RevisionCount, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *MemoryStore) Recall(ctx context.Context, userID uuid.UUID, embedding []float32, opts domain.RecallOpts) ([]domain.MemoryWithScore, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	vec := pgvector.NewVector(embedding)

	var conditions []string
	var args []any

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
	args = append(args, userID)

	conditions = append(conditions, "embedding IS NOT NULL")

	if opts.MemoryType != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, string(*opts.MemoryType))
	}

	if opts.MinConfidence > 0 {
		conditions = append(conditions, fmt.Sprintf("confidence >= $%d", len(args)+1))
		args = append(args, opts.MinConfidence)
	}

	embeddingParam := len(args) + 1
	args = append(args, vec)

	limitParam := len(args) + 1
	args = append(args, opts.TopK)

	query := fmt.Sprintf(
		`SELECT id, user_id, type, content, source, evidence_type, confidence, revision_count, created_at, updated_at,
		        1 - (embedding <=> $%d) AS score
		 FROM memories
		 WHERE %s
		 ORDER BY score DESC
		 LIMIT $%d`,
		embeddingParam,
		strings.Join(conditions, " AND "),
		limitParam,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recall query: %w", err)
	}
	defer rows.Close()
	return scanMemoriesWithScore(rows)
}

func (s *MemoryStore) FindSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32) ([]domain.MemoryWithScore, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, type, content, source, evidence_type, confidence, revision_count, created_at, updated_at,
		        1 - (embedding <=> $1) AS score
		 FROM memories
		 WHERE user_id = $2 AND embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $3
		 ORDER BY score DESC`,
		vec, userID, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar query: %w", err)
	}
	defer rows.Close()
	return scanMemoriesWithScore(rows)
}

// UpdateConfidence replaces the confidence field and bumps revision_count.
// Deletes do not exist in this table's vocabulary.
func (s *MemoryStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float32) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE memories
		 SET confidence = $1, revision_count = revision_count + 1, updated_at = NOW()
		 WHERE id = $2`,
		confidence, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRelated returns memories connected to the given one through graph
// edges, either direction, strongest first.
func (s *MemoryStore) ListRelated(ctx context.Context, memoryID uuid.UUID, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT m.id, m.user_id, m.type, m.content, m.source, m.evidence_type, m.confidence, m.revision_count, m.created_at, m.updated_at
		 FROM memories m
		 JOIN memory_graph g
		   ON (g.target_id = m.id AND g.source_id = $1)
		   OR (g.source_id = m.id AND g.target_id = $1)
		 GROUP BY m.id
		 ORDER BY MAX(g.strength) DESC
		 LIMIT $2`,
		memoryID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list related query: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *MemoryStore) ListRulesByUser(ctx context.Context, userID uuid.UUID) ([]domain.Memory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, type, content, source, evidence_type, confidence, revision_count, created_at, updated_at
		 FROM memories
		 WHERE user_id = $1 AND type = $2
		 ORDER BY confidence DESC`,
		userID, domain.MemoryTypeConstraint,
	)
	if err != nil {
		return nil, fmt.Errorf("list rules query: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows pgx.Rows) ([]domain.Memory, error) {
	var memories []domain.Memory
	for rows.Next() {
		var m domain.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Type, &m.Content, &m.Source, &m.EvidenceType, &m.Confidence, &m.RevisionCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func scanMemoriesWithScore(rows pgx.Rows) ([]domain.MemoryWithScore, error) {
	var results []domain.MemoryWithScore
	for rows.Next() {
		var ms domain.MemoryWithScore
		err := rows.Scan(
			&ms.ID, &ms.UserID, &ms.Type, &ms.Content, &ms.Source, &ms.EvidenceType,
			&ms.Confidence, &ms.RevisionCount, &ms.CreatedAt, &ms.UpdatedAt,
			&ms.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scored memory row: %w", err)
		}
		results = append(results, ms)
	}
	return results, rows.Err()
}
