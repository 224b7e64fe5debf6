package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/domain"
)

type CalibrationStore struct {
	db *pgxpool.Pool
}

func NewCalibrationStore(db *pgxpool.Pool) *CalibrationStore {
	return &CalibrationStore{db: db}
}

func (s *CalibrationStore) RecordObservation(ctx context.Context, o *domain.BeliefUpdateObservation) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO belief_update_observations (user_id, memory_id, wal_entry_id, predicted_delta, actual_delta)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		o.UserID, o.MemoryID, o.WALEntryID, o.PredictedDelta, o.ActualDelta,
	).Scan(&o.ID, &o.CreatedAt)
}

func (s *CalibrationStore) ListObservationsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.BeliefUpdateObservation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, memory_id, wal_entry_id, predicted_delta, actual_delta, created_at
		 FROM belief_update_observations
		 WHERE user_id = $1 AND created_at >= $2
		 ORDER BY created_at ASC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list observations query: %w", err)
	}
	defer rows.Close()

	var observations []domain.BeliefUpdateObservation
	for rows.Next() {
		var o domain.BeliefUpdateObservation
		if err := rows.Scan(&o.ID, &o.UserID, &o.MemoryID, &o.WALEntryID, &o.PredictedDelta, &o.ActualDelta, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (s *CalibrationStore) ListDistinctUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM belief_update_observations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// UpsertResult keeps exactly one running Martingale statistic per user.
func (s *CalibrationStore) UpsertResult(ctx context.Context, r *domain.MartingaleResult) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO martingale_results (user_id, score, window_days, sample_count, coverage_days, triggers_reflection, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id)
		 DO UPDATE SET score = EXCLUDED.score,
		               window_days = EXCLUDED.window_days,
		               sample_count = EXCLUDED.sample_count,
		               coverage_days = EXCLUDED.coverage_days,
		               triggers_reflection = EXCLUDED.triggers_reflection,
		               computed_at = EXCLUDED.computed_at`,
		r.UserID, r.Score, r.WindowDays, r.SampleCount, r.CoverageDays, r.TriggersReflection, r.ComputedAt,
	)
	return err
}

func (s *CalibrationStore) GetResult(ctx context.Context, userID uuid.UUID) (*domain.MartingaleResult, error) {
	r := &domain.MartingaleResult{}
	err := s.db.QueryRow(ctx,
		`SELECT user_id, score, window_days, sample_count, coverage_days, triggers_reflection, computed_at
		 FROM martingale_results WHERE user_id = $1`,
		userID,
	).Scan(&r.UserID, &r.Score, &r.WindowDays, &r.SampleCount, &r.CoverageDays, &r.TriggersReflection, &r.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}
