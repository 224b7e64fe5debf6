package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

const (
	DefaultSweepSchedule       = "@every 2m"
	DefaultCalibrationSchedule = "30 3 * * *"
	DefaultBandCheckSchedule   = "@every 1h"

	// DefaultStaleAge is how long a pending entry may sit before the sweep
	// assumes its enqueue was lost and hands it to the queue again.
	DefaultStaleAge   = 5 * time.Minute
	DefaultSweepLimit = 100

	// The gate should interrupt on a healthy minority of side-effecting
	// calls. Sustained drift outside this band means the clarity penalties
	// need retuning, not that anything failed.
	pushBackBandLow  = 0.05
	pushBackBandHigh = 0.15
	bandWindow       = 24 * time.Hour
	bandMinSample    = 20

	sweepTimeout       = 30 * time.Second
	calibrationTimeout = 5 * time.Minute
)

// Scheduler owns the periodic maintenance no request triggers: re-delivery
// of WAL entries the queue never saw or that are due another attempt, the
// daily calibration recompute, and the push-back band check. Every job
// builds its own bounded context so a hung dependency cannot wedge the
// runner past its stop timeout.
type Scheduler struct {
	wal         domain.WALStore
	queue       domain.QueueBridge
	calibration *CalibrationService
	decisions   domain.DecisionLogStore
	collector   *metrics.Collector
	logger      *zap.Logger

	SweepSchedule       string
	CalibrationSchedule string
	BandCheckSchedule   string
	StaleAge            time.Duration
	SweepLimit          int
	MaxRetries          int

	cron *cron.Cron
}

func NewScheduler(
	wal domain.WALStore,
	queue domain.QueueBridge,
	calibration *CalibrationService,
	decisions domain.DecisionLogStore,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		wal:         wal,
		queue:       queue,
		calibration: calibration,
		decisions:   decisions,
		collector:   collector,
		logger:      logger,

		SweepSchedule:       DefaultSweepSchedule,
		CalibrationSchedule: DefaultCalibrationSchedule,
		BandCheckSchedule:   DefaultBandCheckSchedule,
		StaleAge:            DefaultStaleAge,
		SweepLimit:          DefaultSweepLimit,
		MaxRetries:          DefaultMaxRetries,
	}
}

// Start registers the jobs and begins the cron runner. An invalid schedule
// fails startup rather than silently dropping a job.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.SweepSchedule, s.runSweep); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.CalibrationSchedule, s.runCalibration); err != nil {
		return fmt.Errorf("register calibration job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.BandCheckSchedule, s.runBandCheck); err != nil {
		return fmt.Errorf("register band check job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("sweep", s.SweepSchedule),
		zap.String("calibration", s.CalibrationSchedule),
		zap.String("band_check", s.BandCheckSchedule))
	return nil
}

// Stop halts scheduling and waits briefly for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler stop timed out waiting for running jobs")
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	requeued := s.sweepStalePending(ctx) + s.sweepRetryable(ctx)
	if requeued > 0 {
		s.logger.Info("sweep re-enqueued entries", zap.Int("count", requeued))
	}
}

// sweepStalePending re-delivers pending entries old enough that the fast
// path's enqueue has evidently failed. Double delivery is harmless: the
// worker's status claim makes the second task a no-op.
func (s *Scheduler) sweepStalePending(ctx context.Context) int {
	entries, err := s.wal.ListStalePending(ctx, s.StaleAge, s.SweepLimit)
	if err != nil {
		s.logger.Error("stale pending scan failed", zap.Error(err))
		return 0
	}
	return s.requeue(ctx, entries, "stale_pending")
}

// sweepRetryable re-delivers failed entries still under the retry cap. The
// worker acks every delivery to keep the stream clean, so retries re-enter
// through this sweep rather than through the broker's pending list.
func (s *Scheduler) sweepRetryable(ctx context.Context) int {
	entries, err := s.wal.ListRetryable(ctx, s.MaxRetries, s.SweepLimit)
	if err != nil {
		s.logger.Error("retryable scan failed", zap.Error(err))
		return 0
	}
	return s.requeue(ctx, entries, "retry")
}

func (s *Scheduler) requeue(ctx context.Context, entries []domain.WALEntry, reason string) int {
	n := 0
	for _, e := range entries {
		if err := s.queue.Enqueue(ctx, e.ID); err != nil {
			s.logger.Warn("sweep enqueue failed",
				zap.String("entry_id", e.ID.String()),
				zap.String("reason", reason),
				zap.Error(err))
			continue
		}
		s.collector.SweepRequeues.WithLabelValues(reason).Inc()
		n++
	}
	return n
}

func (s *Scheduler) runCalibration() {
	ctx, cancel := context.WithTimeout(context.Background(), calibrationTimeout)
	defer cancel()
	s.calibration.RunDaily(ctx)
}

// runBandCheck compares the recent clarify rate against the target band.
// Drift is a tuning signal for the gate, logged at warn and never escalated.
func (s *Scheduler) runBandCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	clarified, total, err := s.decisions.ClarifyRateSince(ctx, time.Now().UTC().Add(-bandWindow))
	if err != nil {
		s.logger.Error("push-back rate query failed", zap.Error(err))
		return
	}
	if total < bandMinSample {
		return
	}

	rate := float64(clarified) / float64(total)
	s.collector.PushBackRate.Set(rate)
	if rate < pushBackBandLow || rate > pushBackBandHigh {
		s.logger.Warn("push-back rate outside target band",
			zap.Float64("rate", rate),
			zap.Int("clarified", clarified),
			zap.Int("total", total),
			zap.Float64("band_low", pushBackBandLow),
			zap.Float64("band_high", pushBackBandHigh))
	}
}
