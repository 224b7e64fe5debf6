package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
)

// LogAlertSink emits operational alerts as structured log lines. Routing to
// a pager or inbox is left to whatever tails the logs; the process only
// guarantees the signal goes out and never blocks on it.
type LogAlertSink struct {
	logger *zap.Logger
}

var _ domain.AlertSink = (*LogAlertSink)(nil)

func NewLogAlertSink(logger *zap.Logger) *LogAlertSink {
	return &LogAlertSink{logger: logger.With(zap.String("channel", "alerts"))}
}

func (s *LogAlertSink) BatchFailure(ctx context.Context, batchID uuid.UUID, processed, failed int, rate float64) {
	s.logger.Error("batch failure rate above threshold",
		zap.String("batch_id", batchID.String()),
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Float64("rate", rate))
}

func (s *LogAlertSink) ReflectionTrigger(ctx context.Context, userID uuid.UUID, result *domain.MartingaleResult) {
	s.logger.Warn("calibration variance collapsed, revisions look pre-determined",
		zap.String("user_id", userID.String()),
		zap.Float64("score", result.Score),
		zap.Int("sample_count", result.SampleCount),
		zap.Int("coverage_days", result.CoverageDays))
}

func (s *LogAlertSink) DeadLetter(ctx context.Context, entryID uuid.UUID, retryCount int, lastError string) {
	s.logger.Error("entry dead-lettered",
		zap.String("entry_id", entryID.String()),
		zap.Int("retry_count", retryCount),
		zap.String("last_error", lastError))
}
