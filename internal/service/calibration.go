package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

const (
	DefaultMartingaleWindowDays = 7
	// DefaultLowVarianceThreshold is the Martingale score below which
	// predictions are suspiciously good: the revision engine is no longer
	// learning anything it did not already know.
	DefaultLowVarianceThreshold = 0.05
)

// CalibrationService tracks how well naive revision predictions match the
// revisions actually applied. The score is the mean squared divergence
// between the two; a persistently tiny score across a fully covered window
// fires the self-reflection trigger.
type CalibrationService struct {
	store     domain.CalibrationStore
	alerts    domain.AlertSink
	collector *metrics.Collector
	logger    *zap.Logger

	WindowDays           int
	LowVarianceThreshold float64
}

func NewCalibrationService(store domain.CalibrationStore, alerts domain.AlertSink, collector *metrics.Collector, logger *zap.Logger) *CalibrationService {
	return &CalibrationService{
		store:                store,
		alerts:               alerts,
		collector:            collector,
		logger:               logger,
		WindowDays:           DefaultMartingaleWindowDays,
		LowVarianceThreshold: DefaultLowVarianceThreshold,
	}
}

// RecordRevision stores one predicted/actual delta pair. Called by the slow
// path after each applied revision; the fast path never records anything.
func (s *CalibrationService) RecordRevision(ctx context.Context, userID, memoryID, walEntryID uuid.UUID, predicted, actual float32) error {
	return s.store.RecordObservation(ctx, &domain.BeliefUpdateObservation{
		UserID:         userID,
		MemoryID:       memoryID,
		WALEntryID:     walEntryID,
		PredictedDelta: predicted,
		ActualDelta:    actual,
	})
}

// ComputeUser recomputes the rolling Martingale score for one user and
// persists it. The reflection trigger requires both a low score and an
// observation on every day of the window; a quiet stretch does not count as
// good calibration.
func (s *CalibrationService) ComputeUser(ctx context.Context, userID uuid.UUID) (*domain.MartingaleResult, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -s.WindowDays)

	observations, err := s.store.ListObservationsSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}

	result := &domain.MartingaleResult{
		UserID:     userID,
		WindowDays: s.WindowDays,
		ComputedAt: now,
	}

	if len(observations) == 0 {
		return result, nil
	}

	var sum float64
	days := make(map[string]bool)
	for _, o := range observations {
		diff := float64(o.PredictedDelta) - float64(o.ActualDelta)
		sum += diff * diff
		days[o.CreatedAt.UTC().Format("2006-01-02")] = true
	}

	result.Score = sum / float64(len(observations))
	result.SampleCount = len(observations)
	result.CoverageDays = len(days)
	result.TriggersReflection = result.Score < s.LowVarianceThreshold && result.CoverageDays >= s.WindowDays

	if err := s.store.UpsertResult(ctx, result); err != nil {
		return nil, fmt.Errorf("persist martingale result: %w", err)
	}

	if result.TriggersReflection {
		s.collector.Reflections.Inc()
		s.logger.Info("reflection trigger fired",
			zap.String("user_id", userID.String()),
			zap.Float64("score", result.Score),
			zap.Int("sample_count", result.SampleCount))
		s.alerts.ReflectionTrigger(ctx, userID, result)
	}

	return result, nil
}

// RunDaily recomputes calibration for every user with observations. Errors
// for one user do not stop the sweep.
func (s *CalibrationService) RunDaily(ctx context.Context) {
	userIDs, err := s.store.ListDistinctUserIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list users for calibration", zap.Error(err))
		return
	}

	for _, userID := range userIDs {
		if _, err := s.ComputeUser(ctx, userID); err != nil {
			s.logger.Error("calibration failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
}
