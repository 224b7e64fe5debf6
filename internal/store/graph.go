package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/domain"
)

type GraphStore struct {
	db *pgxpool.Pool
}

func NewGraphStore(db *pgxpool.Pool) *GraphStore {
	return &GraphStore{db: db}
}

func (s *GraphStore) CreateEdge(ctx context.Context, edge *domain.GraphEdge) error {
	// Create primary edge
	err := s.db.QueryRow(ctx,
		`INSERT INTO memory_graph (source_id, target_id, relation_type, strength)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source_id, target_id, relation_type) DO UPDATE
		 SET strength = GREATEST(memory_graph.strength, EXCLUDED.strength)
		 RETURNING id, created_at`,
		edge.SourceID, edge.TargetID, edge.RelationType, edge.Strength,
	).Scan(&edge.ID, &edge.CreatedAt)
	if err != nil {
		return fmt.Errorf("create edge: %w", err)
	}

	// For symmetric relations, create reverse edge
	if domain.SymmetricRelations[edge.RelationType] && edge.SourceID != edge.TargetID {
		_, _ = s.db.Exec(ctx,
			`INSERT INTO memory_graph (source_id, target_id, relation_type, strength)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (source_id, target_id, relation_type) DO UPDATE
			 SET strength = GREATEST(memory_graph.strength, EXCLUDED.strength)`,
			edge.TargetID, edge.SourceID, edge.RelationType, edge.Strength,
		)
	}

	return nil
}

func (s *GraphStore) GetEdge(ctx context.Context, sourceID, targetID uuid.UUID, relationType domain.RelationType) (*domain.GraphEdge, error) {
	edge := &domain.GraphEdge{}
	err := s.db.QueryRow(ctx,
		`SELECT id, source_id, target_id, relation_type, strength, created_at
		 FROM memory_graph
		 WHERE source_id = $1 AND target_id = $2 AND relation_type = $3`,
		sourceID, targetID, relationType,
	).Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.RelationType, &edge.Strength, &edge.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return edge, nil
}

func (s *GraphStore) GetNeighbors(ctx context.Context, memoryID uuid.UUID, relationTypes []domain.RelationType) ([]domain.GraphEdge, error) {
	query := `SELECT id, source_id, target_id, relation_type, strength, created_at
			  FROM memory_graph WHERE (source_id = $1 OR target_id = $1)`
	args := []any{memoryID}

	if len(relationTypes) > 0 {
		types := make([]string, len(relationTypes))
		for i, rt := range relationTypes {
			types[i] = string(rt)
		}
		query += fmt.Sprintf(" AND relation_type = ANY($%d)", len(args)+1)
		args = append(args, types)
	}

	query += " ORDER BY strength DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.GraphEdge
	for rows.Next() {
		var edge domain.GraphEdge
		if err := rows.Scan(&edge.ID, &edge.SourceID, &edge.TargetID, &edge.RelationType, &edge.Strength, &edge.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// CountContradicting returns how many contradicts edges touch the memory in
// either direction.
func (s *GraphStore) CountContradicting(ctx context.Context, memoryID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_graph
		 WHERE (source_id = $1 OR target_id = $1) AND relation_type = $2`,
		memoryID, domain.RelationContradicts,
	).Scan(&count)
	return count, err
}
