package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

const (
	// DefaultJoinTimeout bounds the concurrent extraction/embedding pair.
	// The overall interaction budget is ~200ms; the join gets most of it.
	DefaultJoinTimeout = 150 * time.Millisecond

	contextTopK = 5
)

// FastPathResult is what the caller gets back within the latency budget.
// Consolidation happens later; Candidates are a preview, not a commitment.
type FastPathResult struct {
	Entry      *domain.WALEntry       `json:"entry"`
	Duplicate  bool                   `json:"duplicate"`
	Context    []ScoredMemory         `json:"context,omitempty"`
	Candidates []domain.CandidateFact `json:"candidates,omitempty"`
	// Degraded marks a response produced with partial results: a timed-out
	// extraction, a failed enqueue. The WAL entry is durable either way.
	Degraded bool `json:"degraded,omitempty"`
}

// FastPathService captures an interaction and hands it to the slow path.
// Its dependencies are deliberately write-poor: a WAL appender, a queue, and
// a read-only searcher. There is no graph-writing capability here, so no
// code path reachable from an interaction request can mutate memories.
type FastPathService struct {
	wal       domain.WALStore
	queue     domain.QueueBridge
	retrieval *RetrievalService
	llmClient domain.LLMClient
	embedder  domain.EmbeddingClient
	detector  *ConflictDetector
	collector *metrics.Collector
	logger    *zap.Logger

	joinTimeout time.Duration
}

func NewFastPathService(
	wal domain.WALStore,
	queue domain.QueueBridge,
	retrieval *RetrievalService,
	llmClient domain.LLMClient,
	embedder domain.EmbeddingClient,
	detector *ConflictDetector,
	collector *metrics.Collector,
	logger *zap.Logger,
) *FastPathService {
	return &FastPathService{
		wal:         wal,
		queue:       queue,
		retrieval:   retrieval,
		llmClient:   llmClient,
		embedder:    embedder,
		detector:    detector,
		collector:   collector,
		logger:      logger,
		joinTimeout: DefaultJoinTimeout,
	}
}

// SetJoinTimeout overrides the extraction/embedding budget.
func (s *FastPathService) SetJoinTimeout(d time.Duration) {
	s.joinTimeout = d
}

// Ingest runs the capture pipeline:
//
//  1. WAL append. The only fatal step: without a durable entry there is
//     nothing to consolidate, so the caller sees the failure.
//  2. Read-only context retrieval.
//  3. Fact extraction and embedding, concurrently, under the join budget.
//  4. Conflict flagging on whatever step 3 produced.
//  5. Queue hand-off. Failure here is degraded mode, not an error: the
//     entry stays pending and the sweep delivers it later.
//
// A duplicate idempotency key returns the original entry untouched and
// skips the hand-off; the first delivery already queued it.
func (s *FastPathService) Ingest(ctx context.Context, userID uuid.UUID, payload domain.InteractionPayload, idempotencyKey string) (*FastPathResult, error) {
	start := time.Now()
	defer func() {
		s.collector.FastPathDuration.Observe(time.Since(start).Seconds())
	}()

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	entry := &domain.WALEntry{
		UserID:         userID,
		RawPayload:     raw,
		IdempotencyKey: idempotencyKey,
	}
	created, err := s.wal.CreateEntry(ctx, entry)
	if err != nil {
		s.collector.WALWrites.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("wal append: %w", err)
	}
	if !created {
		s.collector.WALWrites.WithLabelValues("duplicate").Inc()
		s.logger.Debug("duplicate interaction",
			zap.String("idempotency_key", idempotencyKey),
			zap.String("entry_id", entry.ID.String()))
		return &FastPathResult{Entry: entry, Duplicate: true}, nil
	}
	s.collector.WALWrites.WithLabelValues("created").Inc()

	result := &FastPathResult{Entry: entry}

	recalled, err := s.retrieval.Recall(ctx, userID, payload.Content, domain.RecallOpts{TopK: contextTopK})
	if err != nil {
		s.logger.Warn("context retrieval failed", zap.Error(err))
		result.Degraded = true
	} else {
		result.Context = recalled
	}

	facts, msgEmbedding := s.extractAndEmbed(ctx, payload.Content, result)

	if len(facts) > 0 {
		result.Candidates = s.flagCandidates(ctx, userID, facts, msgEmbedding)
	}

	if err := s.queue.Enqueue(ctx, entry.ID); err != nil {
		// Entry stays pending; the stale-pending sweep re-enqueues it.
		s.collector.EnqueueFailures.Inc()
		s.logger.Warn("enqueue failed, entry left pending for sweep",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
		result.Degraded = true
	}

	return result, nil
}

// extractAndEmbed runs the two suspend points concurrently and joins them.
// Neither branch may fail the request: errors and timeouts surface as a
// degraded result with whatever did complete.
func (s *FastPathService) extractAndEmbed(ctx context.Context, content string, result *FastPathResult) ([]domain.ExtractedFact, []float32) {
	joinCtx, cancel := context.WithTimeout(ctx, s.joinTimeout)
	defer cancel()

	var (
		facts        []domain.ExtractedFact
		extractErr   error
		msgEmbedding []float32
		embedErr     error
	)

	var g errgroup.Group
	g.Go(func() error {
		facts, extractErr = s.llmClient.ExtractFacts(joinCtx, content)
		return nil
	})
	g.Go(func() error {
		msgEmbedding, embedErr = s.embedder.Embed(joinCtx, content)
		return nil
	})
	_ = g.Wait()

	if extractErr != nil {
		s.logger.Warn("fact extraction degraded", zap.Error(extractErr))
		result.Degraded = true
	}
	if embedErr != nil {
		s.logger.Warn("embedding degraded", zap.Error(embedErr))
		result.Degraded = true
	}

	return facts, msgEmbedding
}

// flagCandidates marks possible conflicts without resolving anything.
func (s *FastPathService) flagCandidates(ctx context.Context, userID uuid.UUID, facts []domain.ExtractedFact, msgEmbedding []float32) []domain.CandidateFact {
	var similar []domain.MemoryWithScore
	if len(msgEmbedding) > 0 {
		found, err := s.retrieval.FindSimilar(ctx, userID, msgEmbedding, flagSimilarityThreshold)
		if err != nil {
			s.logger.Warn("similarity lookup for flagging failed", zap.Error(err))
		} else {
			similar = found
		}
	}

	candidates := make([]domain.CandidateFact, 0, len(facts))
	for _, f := range facts {
		candidate := domain.CandidateFact{
			Type:         f.Type,
			Content:      f.Content,
			EvidenceType: f.EvidenceType,
			Confidence:   f.EvidenceType.InitialConfidence(),
		}
		s.detector.Flag(&candidate, similar)
		candidates = append(candidates, candidate)
	}
	return candidates
}
