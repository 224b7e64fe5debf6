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

// Fuse applies the open-mindedness update v' = a*lambda + v, clamped to
// [0, 1]. v is the current belief confidence, a the evidence confidence.
func Fuse(evidence, current float32, lambda float64) float32 {
	return domain.Clamp01(float32(float64(evidence)*lambda) + current)
}

// NaiveDelta is the confidence shift the default lambda would produce. The
// calibration loop compares it against the realized per-user shift.
func NaiveDelta(evidence, current float32) float32 {
	return Fuse(evidence, current, domain.DefaultLambda) - current
}

// RevisionEngine reconciles a classified conflict into a new confidence
// value. It adjusts confidence and appends history; it has no way to delete
// a memory.
type RevisionEngine struct {
	memoryStore   domain.MemoryStore
	revisionStore domain.RevisionStore
	policyStore   domain.RevisionPolicyStore
	logger        *zap.Logger
}

func NewRevisionEngine(
	memoryStore domain.MemoryStore,
	revisionStore domain.RevisionStore,
	policyStore domain.RevisionPolicyStore,
	logger *zap.Logger,
) *RevisionEngine {
	return &RevisionEngine{
		memoryStore:   memoryStore,
		revisionStore: revisionStore,
		policyStore:   policyStore,
		logger:        logger,
	}
}

// PolicyFor loads the user's revision policy, falling back to defaults for
// users who never tuned one.
func (e *RevisionEngine) PolicyFor(ctx context.Context, userID uuid.UUID) (*domain.RevisionPolicy, error) {
	policy, err := e.policyStore.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DefaultRevisionPolicy(userID), nil
		}
		return nil, fmt.Errorf("load revision policy: %w", err)
	}
	return policy, nil
}

// Revise computes the fused confidence for a classified conflict, writes it
// to the memory, and appends the revision record. Returns the record so the
// caller can derive the realized delta for calibration.
func (e *RevisionEngine) Revise(
	ctx context.Context,
	conflict domain.BeliefConflict,
	candidate domain.CandidateFact,
	existing domain.Memory,
	walEntryID uuid.UUID,
) (*domain.RevisionRecord, error) {
	policy, err := e.PolicyFor(ctx, existing.UserID)
	if err != nil {
		return nil, err
	}

	lambda := domain.ClampLambda(policy.Lambda)
	newConfidence := Fuse(candidate.Confidence, existing.Confidence, lambda)

	if err := e.memoryStore.UpdateConfidence(ctx, existing.ID, newConfidence); err != nil {
		return nil, fmt.Errorf("update confidence: %w", err)
	}

	record := &domain.RevisionRecord{
		MemoryID:           existing.ID,
		WALEntryID:         walEntryID,
		PriorConfidence:    existing.Confidence,
		NewConfidence:      newConfidence,
		EvidenceConfidence: candidate.Confidence,
		Lambda:             lambda,
		Classification:     conflict.Classification,
		NewStatement:       conflict.NewStatement,
	}
	if err := e.revisionStore.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("append revision record: %w", err)
	}

	e.logger.Debug("belief revised",
		zap.String("memory_id", existing.ID.String()),
		zap.String("classification", string(conflict.Classification)),
		zap.Float32("prior_confidence", record.PriorConfidence),
		zap.Float32("new_confidence", record.NewConfidence),
		zap.Float64("lambda", lambda))

	return record, nil
}
