package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/domain"
)

type DecisionLogStore struct {
	db *pgxpool.Pool
}

func NewDecisionLogStore(db *pgxpool.Pool) *DecisionLogStore {
	return &DecisionLogStore{db: db}
}

func (s *DecisionLogStore) Create(ctx context.Context, d *domain.VoIDecision) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO voi_decisions (user_id, tool_name, action_type, c_error, p_error, c_int, voi_score, should_clarify)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		d.UserID, d.ToolName, d.ActionType, d.CError, d.PError, d.CInt, d.VoIScore, d.ShouldClarify,
	).Scan(&d.ID, &d.CreatedAt)
}

func (s *DecisionLogStore) ClarifyRateSince(ctx context.Context, since time.Time) (int, int, error) {
	var clarified, total int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE should_clarify), COUNT(*)
		 FROM voi_decisions WHERE created_at >= $1`,
		since,
	).Scan(&clarified, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("clarify rate query: %w", err)
	}
	return clarified, total, nil
}

func (s *DecisionLogStore) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.VoIDecision, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, tool_name, action_type, c_error, p_error, c_int, voi_score, should_clarify, created_at
		 FROM voi_decisions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []domain.VoIDecision
	for rows.Next() {
		var d domain.VoIDecision
		if err := rows.Scan(&d.ID, &d.UserID, &d.ToolName, &d.ActionType, &d.CError, &d.PError, &d.CInt, &d.VoIScore, &d.ShouldClarify, &d.CreatedAt); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
