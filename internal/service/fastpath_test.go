package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/embedding"
	"github.com/seracourt/ripple/internal/llm"
	"github.com/seracourt/ripple/internal/metrics"
)

type fastPathFixture struct {
	svc      *FastPathService
	wal      *mockWALStore
	queue    *mockQueue
	memStore *mockMemoryStore
	llm      *llm.MockClient
	embedder *embedding.MockClient
}

func newFastPathFixture() *fastPathFixture {
	f := &fastPathFixture{
		wal:      newMockWALStore(),
		queue:    newMockQueue(),
		memStore: newMockMemoryStore(),
		llm:      llm.NewMockClient(),
		embedder: embedding.NewMockClient(),
	}
	logger := zap.NewNop()
	collector := metrics.NewCollector()
	retrieval := NewRetrievalService(f.memStore, f.embedder, collector, logger)
	detector := NewConflictDetector(f.llm, logger)
	f.svc = NewFastPathService(f.wal, f.queue, retrieval, f.llm, f.embedder, detector, collector, logger)
	return f
}

func TestIngestPersistsAndEnqueues(t *testing.T) {
	f := newFastPathFixture()
	userID := uuid.New()
	now := time.Now()

	existing := domain.Memory{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       domain.MemoryTypePreference,
		Content:    "User prefers coffee",
		Confidence: 0.8,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.memStore.recallResults = []domain.MemoryWithScore{{Memory: existing, Score: 0.9}}
	f.memStore.similarResults = []domain.MemoryWithScore{{Memory: existing, Score: 0.9}}
	f.llm.ExtractFactsResponse = []domain.ExtractedFact{
		{Type: domain.MemoryTypePreference, Content: "User prefers tea", EvidenceType: domain.EvidenceExplicit},
	}

	result, err := f.svc.Ingest(context.Background(), userID,
		domain.InteractionPayload{Content: "Actually I prefer tea now"}, "key-1")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Duplicate {
		t.Fatal("fresh key reported as duplicate")
	}
	if result.Entry.ID == uuid.Nil {
		t.Fatal("entry ID not assigned")
	}
	if result.Entry.Status != domain.WALStatusPending {
		t.Fatalf("expected pending entry, got %s", result.Entry.Status)
	}
	if result.Degraded {
		t.Fatal("happy path reported degraded")
	}
	if len(result.Context) != 1 {
		t.Fatalf("expected 1 context memory, got %d", len(result.Context))
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}

	candidate := result.Candidates[0]
	if candidate.Confidence != domain.EvidenceExplicit.InitialConfidence() {
		t.Errorf("candidate confidence = %v, want %v",
			candidate.Confidence, domain.EvidenceExplicit.InitialConfidence())
	}
	if !candidate.PossibleConflict {
		t.Error("overlapping candidate not flagged")
	}
	if len(candidate.ConflictsWith) != 1 || candidate.ConflictsWith[0] != existing.ID {
		t.Errorf("ConflictsWith = %v, want [%s]", candidate.ConflictsWith, existing.ID)
	}

	ids := f.queue.enqueuedIDs()
	if len(ids) != 1 || ids[0] != result.Entry.ID {
		t.Fatalf("queue = %v, want [%s]", ids, result.Entry.ID)
	}
}

func TestIngestDuplicateReturnsExistingAndSkipsEnqueue(t *testing.T) {
	f := newFastPathFixture()
	userID := uuid.New()
	ctx := context.Background()
	payload := domain.InteractionPayload{Content: "I moved to Berlin"}

	first, err := f.svc.Ingest(ctx, userID, payload, "same-key")
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := f.svc.Ingest(ctx, userID, payload, "same-key")
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if !second.Duplicate {
		t.Fatal("replay not reported as duplicate")
	}
	if second.Entry.ID != first.Entry.ID {
		t.Errorf("duplicate returned entry %s, want original %s", second.Entry.ID, first.Entry.ID)
	}
	if got := len(f.queue.enqueuedIDs()); got != 1 {
		t.Errorf("queue has %d tasks, want 1; replay must not enqueue again", got)
	}
	if got := len(f.llm.ExtractFactsCalls); got != 1 {
		t.Errorf("extraction ran %d times, want 1; replay must return before the pipeline", got)
	}
}

func TestIngestWALFailureIsFatal(t *testing.T) {
	f := newFastPathFixture()
	f.wal.failCreate = errors.New("connection refused")

	_, err := f.svc.Ingest(context.Background(), uuid.New(),
		domain.InteractionPayload{Content: "hello"}, "key-1")
	if err == nil {
		t.Fatal("expected error when the durable write fails")
	}
	if got := len(f.queue.enqueuedIDs()); got != 0 {
		t.Errorf("queue has %d tasks after failed write, want 0", got)
	}
}

func TestIngestEnqueueFailureLeavesEntryPending(t *testing.T) {
	f := newFastPathFixture()
	f.queue.failNext = errors.New("stream unavailable")

	result, err := f.svc.Ingest(context.Background(), uuid.New(),
		domain.InteractionPayload{Content: "hello"}, "key-1")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.Degraded {
		t.Error("enqueue failure not reported as degraded")
	}

	pending, err := f.wal.GetPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != result.Entry.ID {
		t.Fatalf("entry not left pending for the sweep: %v", pending)
	}
	if got := len(f.queue.enqueuedIDs()); got != 0 {
		t.Errorf("queue has %d tasks, want 0", got)
	}
}

func TestIngestExtractionFailureStillEnqueues(t *testing.T) {
	f := newFastPathFixture()
	f.llm.ExtractFactsError = errors.New("rate limited")

	result, err := f.svc.Ingest(context.Background(), uuid.New(),
		domain.InteractionPayload{Content: "hello"}, "key-1")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.Degraded {
		t.Error("extraction failure not reported as degraded")
	}
	if len(result.Candidates) != 0 {
		t.Errorf("got %d candidates from failed extraction, want 0", len(result.Candidates))
	}
	if got := len(f.queue.enqueuedIDs()); got != 1 {
		t.Errorf("queue has %d tasks, want 1; the entry must still reach the slow path", got)
	}
}

func TestIngestEmbeddingFailureSkipsFlagging(t *testing.T) {
	f := newFastPathFixture()
	f.embedder.Err = errors.New("embedding service down")
	f.llm.ExtractFactsResponse = []domain.ExtractedFact{
		{Type: domain.MemoryTypeFact, Content: "Works at Acme", EvidenceType: domain.EvidenceExplicit},
	}
	f.memStore.similarResults = []domain.MemoryWithScore{
		{Memory: domain.Memory{ID: uuid.New(), Type: domain.MemoryTypeFact}, Score: 0.9},
	}

	result, err := f.svc.Ingest(context.Background(), uuid.New(),
		domain.InteractionPayload{Content: "I work at Acme"}, "key-1")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.Degraded {
		t.Error("embedding failure not reported as degraded")
	}
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	if result.Candidates[0].PossibleConflict {
		t.Error("candidate flagged without an embedding to compare")
	}
	if got := len(f.queue.enqueuedIDs()); got != 1 {
		t.Errorf("queue has %d tasks, want 1", got)
	}
}

func TestIngestConcurrentSameKeyCreatesOneEntry(t *testing.T) {
	f := newFastPathFixture()
	userID := uuid.New()
	payload := domain.InteractionPayload{Content: "concurrent delivery"}

	const workers = 3
	results := make([]*FastPathResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.Ingest(context.Background(), userID, payload, "race-key")
			if err != nil {
				t.Errorf("Ingest %d: %v", i, err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	creators := 0
	for _, r := range results {
		if r == nil {
			t.Fatal("missing result")
		}
		if !r.Duplicate {
			creators++
		}
		if r.Entry.ID != results[0].Entry.ID {
			t.Errorf("entry IDs diverge: %s vs %s", r.Entry.ID, results[0].Entry.ID)
		}
	}
	if creators != 1 {
		t.Errorf("%d requests created an entry, want exactly 1", creators)
	}
	if got := len(f.queue.enqueuedIDs()); got != 1 {
		t.Errorf("queue has %d tasks, want 1", got)
	}
}
