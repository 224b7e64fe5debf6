package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/domain"
)

type RevisionPolicyStore struct {
	db *pgxpool.Pool
}

func NewRevisionPolicyStore(db *pgxpool.Pool) *RevisionPolicyStore {
	return &RevisionPolicyStore{db: db}
}

func (s *RevisionPolicyStore) Upsert(ctx context.Context, p *domain.RevisionPolicy) error {
	p.Lambda = domain.ClampLambda(p.Lambda)
	return s.db.QueryRow(ctx,
		`INSERT INTO revision_policies (user_id, lambda, interruption_cost)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id)
		 DO UPDATE SET lambda = EXCLUDED.lambda,
		               interruption_cost = EXCLUDED.interruption_cost,
		               updated_at = NOW()
		 RETURNING created_at, updated_at`,
		p.UserID, p.Lambda, p.InterruptionCost,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (s *RevisionPolicyStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.RevisionPolicy, error) {
	p := &domain.RevisionPolicy{}
	err := s.db.QueryRow(ctx,
		`SELECT user_id, lambda, interruption_cost, created_at, updated_at
		 FROM revision_policies WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Lambda, &p.InterruptionCost, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}
