package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/domain"
)

type WALStore struct {
	db *pgxpool.Pool
}

func NewWALStore(db *pgxpool.Pool) *WALStore {
	return &WALStore{db: db}
}

const walColumns = `id, seq, user_id, raw_payload, status, retry_count, idempotency_key, last_error, created_at, updated_at`

// CreateEntry appends one entry. On a duplicate idempotency key the insert
// is a no-op and the original entry is loaded and returned unchanged, so a
// retried webhook resolves to the same row it created the first time.
func (s *WALStore) CreateEntry(ctx context.Context, e *domain.WALEntry) (bool, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO wal_entries (user_id, raw_payload, status, retry_count, idempotency_key)
		 VALUES ($1, $2, $3, 0, $4)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id, seq, created_at, updated_at`,
		e.UserID, e.RawPayload, domain.WALStatusPending, e.IdempotencyKey,
	).Scan(&e.ID, &e.Seq, &e.CreatedAt, &e.UpdatedAt)
	if err == nil {
		e.Status = domain.WALStatusPending
		e.RetryCount = 0
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("insert wal entry: %w", err)
	}

	// Conflict path: the key already exists, return the first entry.
	existing, err := s.getByIdempotencyKey(ctx, e.IdempotencyKey)
	if err != nil {
		return false, fmt.Errorf("load existing wal entry: %w", err)
	}
	*e = *existing
	return false, nil
}

func (s *WALStore) getByIdempotencyKey(ctx context.Context, key string) (*domain.WALEntry, error) {
	e := &domain.WALEntry{}
	err := s.db.QueryRow(ctx,
		`SELECT `+walColumns+` FROM wal_entries WHERE idempotency_key = $1`,
		key,
	).Scan(&e.ID, &e.Seq, &e.UserID, &e.RawPayload, &e.Status, &e.RetryCount, &e.IdempotencyKey, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *WALStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WALEntry, error) {
	e := &domain.WALEntry{}
	err := s.db.QueryRow(ctx,
		`SELECT `+walColumns+` FROM wal_entries WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Seq, &e.UserID, &e.RawPayload, &e.Status, &e.RetryCount, &e.IdempotencyKey, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *WALStore) GetPending(ctx context.Context, limit int) ([]domain.WALEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+walColumns+` FROM wal_entries
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		domain.WALStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending query: %w", err)
	}
	defer rows.Close()
	return scanWALEntries(rows)
}

// MarkStatus moves an entry between statuses in one atomic update guarded
// by the expected current status. A zero-row update means another writer
// won the race. Moves outside the worker's state machine are rejected
// before touching the row; dead_letter only leaves through Requeue.
func (s *WALStore) MarkStatus(ctx context.Context, id uuid.UUID, from, to domain.WALStatus, retryCount int) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE wal_entries
		 SET status = $1, retry_count = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		to, retryCount, id, from,
	)
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *WALStore) RecordError(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE wal_entries SET last_error = $1, updated_at = NOW() WHERE id = $2`,
		msg, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *WALStore) ListAfterSeq(ctx context.Context, afterSeq int64, statuses []domain.WALStatus, limit int) ([]domain.WALEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if len(statuses) == 0 {
		statuses = []domain.WALStatus{domain.WALStatusPending, domain.WALStatusProcessing}
	}

	placeholders := make([]string, len(statuses))
	args := []any{afterSeq}
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, st)
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT `+walColumns+` FROM wal_entries
		 WHERE seq > $1 AND status IN (%s)
		 ORDER BY seq ASC
		 LIMIT $%d`,
		strings.Join(placeholders, ", "),
		len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list after seq query: %w", err)
	}
	defer rows.Close()
	return scanWALEntries(rows)
}

func (s *WALStore) ListByStatus(ctx context.Context, status domain.WALStatus, limit int) ([]domain.WALEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+walColumns+` FROM wal_entries
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list by status query: %w", err)
	}
	defer rows.Close()
	return scanWALEntries(rows)
}

func (s *WALStore) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.WALEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+walColumns+` FROM wal_entries
		 WHERE status = $1 AND created_at < NOW() - ($2 || ' seconds')::interval
		 ORDER BY created_at ASC
		 LIMIT $3`,
		domain.WALStatusPending, fmt.Sprintf("%d", int(olderThan.Seconds())), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending query: %w", err)
	}
	defer rows.Close()
	return scanWALEntries(rows)
}

func (s *WALStore) ListRetryable(ctx context.Context, maxRetries int, limit int) ([]domain.WALEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+walColumns+` FROM wal_entries
		 WHERE status = $1 AND retry_count < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		domain.WALStatusFailed, maxRetries, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable query: %w", err)
	}
	defer rows.Close()
	return scanWALEntries(rows)
}

// Requeue resets a dead-letter entry to pending with a fresh retry budget.
// This is the manual intervention path; it refuses entries in any other
// status.
func (s *WALStore) Requeue(ctx context.Context, id uuid.UUID) (*domain.WALEntry, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE wal_entries
		 SET status = $1, retry_count = 0, last_error = '', updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		domain.WALStatusPending, id, domain.WALStatusDeadLetter,
	)
	if err != nil {
		return nil, fmt.Errorf("requeue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing row from wrong status for the caller.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	return s.GetByID(ctx, id)
}

func scanWALEntries(rows pgx.Rows) ([]domain.WALEntry, error) {
	var entries []domain.WALEntry
	for rows.Next() {
		var e domain.WALEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.UserID, &e.RawPayload, &e.Status, &e.RetryCount, &e.IdempotencyKey, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan wal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
