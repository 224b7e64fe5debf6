package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

func seedObservations(store *mockCalibrationStore, userID uuid.UUID, days int, perDay int, predicted, actual float32) {
	now := time.Now().UTC()
	for d := 0; d < days; d++ {
		for i := 0; i < perDay; i++ {
			_ = store.RecordObservation(context.Background(), &domain.BeliefUpdateObservation{
				UserID:         userID,
				MemoryID:       uuid.New(),
				WALEntryID:     uuid.New(),
				PredictedDelta: predicted,
				ActualDelta:    actual,
				CreatedAt:      now.AddDate(0, 0, -d).Add(-time.Hour),
			})
		}
	}
}

func TestComputeUserScoresSquaredDivergence(t *testing.T) {
	calStore := newMockCalibrationStore()
	alerts := newMockAlertSink()
	svc := NewCalibrationService(calStore, alerts, metrics.NewCollector(), zap.NewNop())

	userID := uuid.New()
	// Two observations, each diverging by 0.2: M = (0.04 + 0.04) / 2 = 0.04.
	seedObservations(calStore, userID, 1, 2, 0.5, 0.3)

	result, err := svc.ComputeUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ComputeUser: %v", err)
	}

	if !almostEqual(float32(result.Score), 0.04) {
		t.Errorf("Score = %v, want 0.04", result.Score)
	}
	if result.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", result.SampleCount)
	}
	if result.CoverageDays != 1 {
		t.Errorf("CoverageDays = %d, want 1", result.CoverageDays)
	}
	if result.TriggersReflection {
		t.Error("one covered day must not trigger reflection")
	}
}

func TestComputeUserTriggersReflectionOnFullCoverage(t *testing.T) {
	calStore := newMockCalibrationStore()
	alerts := newMockAlertSink()
	svc := NewCalibrationService(calStore, alerts, metrics.NewCollector(), zap.NewNop())

	userID := uuid.New()
	// Perfect predictions on every day of the window.
	seedObservations(calStore, userID, DefaultMartingaleWindowDays, 2, 0.3, 0.3)

	result, err := svc.ComputeUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ComputeUser: %v", err)
	}

	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
	if result.CoverageDays < DefaultMartingaleWindowDays {
		t.Fatalf("CoverageDays = %d, want >= %d", result.CoverageDays, DefaultMartingaleWindowDays)
	}
	if !result.TriggersReflection {
		t.Error("expected reflection trigger")
	}
	if len(alerts.reflections) != 1 || alerts.reflections[0] != userID {
		t.Errorf("reflection alerts = %v, want [%s]", alerts.reflections, userID)
	}

	stored, err := calStore.GetResult(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !stored.TriggersReflection {
		t.Error("persisted result should carry the trigger")
	}
}

func TestComputeUserNoTriggerOnHighVariance(t *testing.T) {
	calStore := newMockCalibrationStore()
	alerts := newMockAlertSink()
	svc := NewCalibrationService(calStore, alerts, metrics.NewCollector(), zap.NewNop())

	userID := uuid.New()
	// Full coverage but wildly wrong predictions.
	seedObservations(calStore, userID, DefaultMartingaleWindowDays, 1, 0.9, 0.1)

	result, err := svc.ComputeUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ComputeUser: %v", err)
	}

	if result.TriggersReflection {
		t.Error("high variance must not trigger reflection")
	}
	if len(alerts.reflections) != 0 {
		t.Errorf("no alerts expected, got %v", alerts.reflections)
	}
}

func TestComputeUserEmptyWindow(t *testing.T) {
	calStore := newMockCalibrationStore()
	svc := NewCalibrationService(calStore, newMockAlertSink(), metrics.NewCollector(), zap.NewNop())

	result, err := svc.ComputeUser(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ComputeUser: %v", err)
	}
	if result.SampleCount != 0 || result.Score != 0 || result.TriggersReflection {
		t.Errorf("empty window should produce a zero result, got %+v", result)
	}
}

func TestRunDailyCoversAllUsers(t *testing.T) {
	calStore := newMockCalibrationStore()
	alerts := newMockAlertSink()
	svc := NewCalibrationService(calStore, alerts, metrics.NewCollector(), zap.NewNop())

	userA := uuid.New()
	userB := uuid.New()
	seedObservations(calStore, userA, DefaultMartingaleWindowDays, 1, 0.3, 0.3)
	seedObservations(calStore, userB, 2, 1, 0.3, 0.3)

	svc.RunDaily(context.Background())

	if _, err := calStore.GetResult(context.Background(), userA); err != nil {
		t.Errorf("userA result missing: %v", err)
	}
	if _, err := calStore.GetResult(context.Background(), userB); err != nil {
		t.Errorf("userB result missing: %v", err)
	}
	if len(alerts.reflections) != 1 || alerts.reflections[0] != userA {
		t.Errorf("only userA should trigger, got %v", alerts.reflections)
	}
}
