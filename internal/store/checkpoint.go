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

type CheckpointStore struct {
	db *pgxpool.Pool
}

func NewCheckpointStore(db *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) StartBatch(ctx context.Context, workerID string) (*domain.Checkpoint, error) {
	c := &domain.Checkpoint{WorkerID: workerID}
	err := s.db.QueryRow(ctx,
		`INSERT INTO worker_checkpoints (worker_id, last_entry_seq, entries_processed, entries_failed)
		 VALUES ($1, 0, 0, 0)
		 RETURNING batch_id, created_at, updated_at`,
		workerID,
	).Scan(&c.BatchID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("start batch: %w", err)
	}
	return c, nil
}

// Advance moves the high-water mark and the counters together, one row
// update per processed entry. Synchronous on purpose: the reprocessing
// window after a crash is bounded to the single in-flight entry.
func (s *CheckpointStore) Advance(ctx context.Context, batchID uuid.UUID, entryID uuid.UUID, entrySeq int64, success bool) error {
	failedInc := 0
	if !success {
		failedInc = 1
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE worker_checkpoints
		 SET last_entry_id = $1,
		     last_entry_seq = GREATEST(last_entry_seq, $2),
		     entries_processed = entries_processed + 1,
		     entries_failed = entries_failed + $3,
		     updated_at = NOW()
		 WHERE batch_id = $4 AND completed_at IS NULL`,
		entryID, entrySeq, failedInc, batchID,
	)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CheckpointStore) Complete(ctx context.Context, batchID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE worker_checkpoints SET completed_at = NOW(), updated_at = NOW()
		 WHERE batch_id = $1 AND completed_at IS NULL`,
		batchID,
	)
	if err != nil {
		return fmt.Errorf("complete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadLatest returns the newest open checkpoint for the worker, nil when
// there is nothing to resume.
func (s *CheckpointStore) LoadLatest(ctx context.Context, workerID string) (*domain.Checkpoint, error) {
	c := &domain.Checkpoint{}
	err := s.db.QueryRow(ctx,
		`SELECT batch_id, worker_id, last_entry_id, last_entry_seq, entries_processed, entries_failed, completed_at, created_at, updated_at
		 FROM worker_checkpoints
		 WHERE worker_id = $1 AND completed_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`,
		workerID,
	).Scan(&c.BatchID, &c.WorkerID, &c.LastEntryID, &c.LastEntrySeq, &c.EntriesProcessed, &c.EntriesFailed, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return c, nil
}
