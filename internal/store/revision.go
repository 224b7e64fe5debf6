package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/domain"
)

type RevisionStore struct {
	db *pgxpool.Pool
}

func NewRevisionStore(db *pgxpool.Pool) *RevisionStore {
	return &RevisionStore{db: db}
}

func (s *RevisionStore) Create(ctx context.Context, r *domain.RevisionRecord) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO memory_revisions (memory_id, wal_entry_id, prior_confidence, new_confidence, evidence_confidence, lambda, classification, new_statement)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		r.MemoryID, r.WALEntryID, r.PriorConfidence, r.NewConfidence, r.EvidenceConfidence, r.Lambda, r.Classification, r.NewStatement,
	).Scan(&r.ID, &r.CreatedAt)
}

func (s *RevisionStore) GetByMemoryID(ctx context.Context, memoryID uuid.UUID) ([]domain.RevisionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, memory_id, wal_entry_id, prior_confidence, new_confidence, evidence_confidence, lambda, classification, new_statement, created_at
		 FROM memory_revisions
		 WHERE memory_id = $1
		 ORDER BY created_at ASC`,
		memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("revision history query: %w", err)
	}
	defer rows.Close()

	var records []domain.RevisionRecord
	for rows.Next() {
		var r domain.RevisionRecord
		if err := rows.Scan(&r.ID, &r.MemoryID, &r.WALEntryID, &r.PriorConfidence, &r.NewConfidence, &r.EvidenceConfidence, &r.Lambda, &r.Classification, &r.NewStatement, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *RevisionStore) CountByMemoryID(ctx context.Context, memoryID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_revisions WHERE memory_id = $1`,
		memoryID,
	).Scan(&count)
	return count, err
}
