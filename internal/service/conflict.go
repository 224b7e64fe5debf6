package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
)

const (
	// OverrideMargin is how far new evidence must exceed the existing
	// belief's confidence to win outright.
	OverrideMargin = 0.2
	// MarginalBand is the confidence gap below which an update is routine.
	MarginalBand = 0.2
	// OutlierContradictionCount is how many related beliefs a statement must
	// contradict before it is treated as an outlier rather than an update.
	OutlierContradictionCount = 3

	// flagSimilarityThreshold marks a candidate as a possible conflict on
	// the fast path without resolving anything.
	flagSimilarityThreshold = 0.75
)

// ConflictDetector classifies a candidate fact against the beliefs it
// touches. Classification never writes; resolution belongs to the revision
// engine.
type ConflictDetector struct {
	llmClient domain.LLMClient
	logger    *zap.Logger
}

func NewConflictDetector(llmClient domain.LLMClient, logger *zap.Logger) *ConflictDetector {
	return &ConflictDetector{
		llmClient: llmClient,
		logger:    logger,
	}
}

// Flag marks candidates that overlap an existing belief closely enough to
// deserve a full classification later. Deterministic and LLM-free so it fits
// inside the interaction latency budget.
func (d *ConflictDetector) Flag(candidate *domain.CandidateFact, similar []domain.MemoryWithScore) {
	for _, mem := range similar {
		if mem.Score < flagSimilarityThreshold {
			continue
		}
		if mem.Type != candidate.Type {
			continue
		}
		candidate.PossibleConflict = true
		candidate.ConflictsWith = append(candidate.ConflictsWith, mem.ID)
	}
}

// Classify applies the decision matrix in fixed order; the first matching
// rule wins and the order is part of the contract:
//
//  1. HIGH_CONFIDENCE_OVERRIDE: new evidence beats the belief by more than
//     the override margin.
//  2. MARGINAL_UPDATE: the confidence gap is inside the marginal band.
//  3. OUTLIER_DETECTION: the statement contradicts more than
//     OutlierContradictionCount related beliefs.
//  4. PATTERN_VIOLATION: the statement contradicts a constraint belief.
//
// A statement that is outweighed by the existing belief but triggers neither
// outlier nor pattern checks falls through to MARGINAL_UPDATE.
func (d *ConflictDetector) Classify(ctx context.Context, candidate domain.CandidateFact, existing domain.Memory, related []domain.Memory) domain.BeliefConflict {
	conflict := domain.BeliefConflict{
		NewStatement:     candidate.Content,
		ExistingMemoryID: existing.ID,
		ConfidenceDelta:  candidate.Confidence - existing.Confidence,
	}

	diff := float64(candidate.Confidence) - float64(existing.Confidence)

	if diff > OverrideMargin {
		conflict.Classification = domain.ConflictHighConfidenceOverride
		return conflict
	}

	if math.Abs(diff) < MarginalBand {
		conflict.Classification = domain.ConflictMarginalUpdate
		return conflict
	}

	contradicted := 0
	var violatedRule *domain.Memory
	for i := range related {
		contradicts, err := d.llmClient.CheckContradiction(ctx, candidate.Content, related[i].Content)
		if err != nil {
			// A failed check counts as no contradiction.
			d.logger.Warn("contradiction check failed",
				zap.String("memory_id", related[i].ID.String()),
				zap.Error(err))
			continue
		}
		if !contradicts {
			continue
		}
		contradicted++
		if violatedRule == nil && related[i].IsRule() {
			violatedRule = &related[i]
		}
	}

	if contradicted > OutlierContradictionCount {
		conflict.Classification = domain.ConflictOutlierDetection
		return conflict
	}

	if violatedRule != nil {
		conflict.Classification = domain.ConflictPatternViolation
		return conflict
	}

	conflict.Classification = domain.ConflictMarginalUpdate
	return conflict
}
