package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

const (
	DefaultBatchSize            = 10
	DefaultMaxRetries           = 3
	DefaultFailureRateThreshold = 0.5
	DefaultDequeueBlock         = 2 * time.Second

	// relationSimilarityFloor is the loose threshold for gathering
	// relationship-detection candidates; conflict checks use the stricter
	// flagSimilarityThreshold.
	relationSimilarityFloor = 0.5
	// thematicEdgeFloor is the similarity above which two memories get a
	// thematic edge even without an LLM-detected relation.
	thematicEdgeFloor = 0.8

	relationDetectLimit = 5
	relatedLimit        = 10
	resumeScanLimit     = 500

	batchTimeout = 5 * time.Minute
)

type entryOutcome string

const (
	outcomeCompleted entryOutcome = "completed"
	outcomeFailed    entryOutcome = "failed"
	outcomeSkipped   entryOutcome = "skipped"
)

// ConsolidationWorker drains the queue and turns raw interactions into graph
// writes. It is the only component that mutates memories, edges and entities.
// Entries are processed one at a time; running more workers is safe because
// every entry is claimed through an optimistic WAL status transition first.
type ConsolidationWorker struct {
	wal         domain.WALStore
	queue       domain.QueueBridge
	checkpoints domain.CheckpointStore
	memories    domain.MemoryStore
	graph       domain.GraphStore
	resolver    *EntityResolver
	detector    *ConflictDetector
	revisions   *RevisionEngine
	calibration *CalibrationService
	retrieval   *RetrievalService
	llmClient   domain.LLMClient
	embedder    domain.EmbeddingClient
	alerts      domain.AlertSink
	collector   *metrics.Collector
	workerID    string
	logger      *zap.Logger

	BatchSize            int64
	MaxRetries           int
	FailureRateThreshold float64
	DequeueBlock         time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsolidationWorker(
	wal domain.WALStore,
	queue domain.QueueBridge,
	checkpoints domain.CheckpointStore,
	memories domain.MemoryStore,
	graph domain.GraphStore,
	resolver *EntityResolver,
	detector *ConflictDetector,
	revisions *RevisionEngine,
	calibration *CalibrationService,
	retrieval *RetrievalService,
	llmClient domain.LLMClient,
	embedder domain.EmbeddingClient,
	alerts domain.AlertSink,
	collector *metrics.Collector,
	workerID string,
	logger *zap.Logger,
) *ConsolidationWorker {
	return &ConsolidationWorker{
		wal:                  wal,
		queue:                queue,
		checkpoints:          checkpoints,
		memories:             memories,
		graph:                graph,
		resolver:             resolver,
		detector:             detector,
		revisions:            revisions,
		calibration:          calibration,
		retrieval:            retrieval,
		llmClient:            llmClient,
		embedder:             embedder,
		alerts:               alerts,
		collector:            collector,
		workerID:             workerID,
		logger:               logger,
		BatchSize:            DefaultBatchSize,
		MaxRetries:           DefaultMaxRetries,
		FailureRateThreshold: DefaultFailureRateThreshold,
		DequeueBlock:         DefaultDequeueBlock,
		stopCh:               make(chan struct{}),
	}
}

// Start resumes any interrupted batch, then begins draining the queue.
func (w *ConsolidationWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("consolidation worker started", zap.String("worker_id", w.workerID))

		ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
		w.resume(ctx)
		cancel()

		for {
			select {
			case <-w.stopCh:
				w.logger.Info("consolidation worker stopped", zap.String("worker_id", w.workerID))
				return
			default:
			}

			ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
			w.runBatch(ctx)
			cancel()
		}
	}()
}

// Stop halts the worker after the in-flight batch finishes.
func (w *ConsolidationWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// resume redrives entries left behind by a crash: an incomplete checkpoint
// points at the last advanced seq, and every non-terminal entry after it is
// reprocessed. Completed entries short-circuit, so at most the one entry
// that was mid-flight when the crash hit gets any real rework.
func (w *ConsolidationWorker) resume(ctx context.Context) {
	cp, err := w.checkpoints.LoadLatest(ctx, w.workerID)
	if err != nil {
		w.logger.Error("checkpoint lookup failed", zap.Error(err))
		return
	}
	if cp == nil {
		return
	}

	entries, err := w.wal.ListAfterSeq(ctx, cp.LastEntrySeq,
		[]domain.WALStatus{domain.WALStatusPending, domain.WALStatusProcessing, domain.WALStatusFailed},
		resumeScanLimit)
	if err != nil {
		w.logger.Error("resume scan failed", zap.Error(err))
		return
	}

	w.logger.Info("resuming interrupted batch",
		zap.String("batch_id", cp.BatchID.String()),
		zap.Int64("last_entry_seq", cp.LastEntrySeq),
		zap.Int("entries", len(entries)))

	for i := range entries {
		outcome := w.processEntry(ctx, &entries[i])
		w.collector.Consolidations.WithLabelValues(string(outcome)).Inc()
		if outcome == outcomeSkipped {
			continue
		}
		cp.EntriesProcessed++
		if outcome == outcomeFailed {
			cp.EntriesFailed++
		}
		if err := w.checkpoints.Advance(ctx, cp.BatchID, entries[i].ID, entries[i].Seq, outcome == outcomeCompleted); err != nil {
			w.logger.Error("checkpoint advance failed", zap.Error(err))
		}
	}

	// The loaded copy already holds the pre-crash counters, so the rate
	// covers the whole batch, not just the redriven tail.
	if rate := cp.FailureRate(); rate > w.FailureRateThreshold {
		w.collector.BatchFailureAlerts.Inc()
		w.alerts.BatchFailure(ctx, cp.BatchID, cp.EntriesProcessed, cp.EntriesFailed, rate)
	}

	if err := w.checkpoints.Complete(ctx, cp.BatchID); err != nil {
		w.logger.Error("checkpoint complete failed", zap.Error(err))
	}
}

func (w *ConsolidationWorker) runBatch(ctx context.Context) {
	tasks, err := w.queue.Dequeue(ctx, w.workerID, w.BatchSize, w.DequeueBlock)
	if err != nil {
		w.logger.Error("dequeue failed", zap.Error(err))
		time.Sleep(w.DequeueBlock)
		return
	}
	if len(tasks) == 0 {
		return
	}

	cp, err := w.checkpoints.StartBatch(ctx, w.workerID)
	if err != nil {
		// Without a checkpoint nothing is processed; leave tasks pending in
		// the stream so a healthy worker claims them.
		w.logger.Error("start batch failed", zap.Error(err))
		return
	}

	// The copy's counters track what Advance writes to the row, one
	// increment per non-skipped entry.
	for _, task := range tasks {
		outcome := w.handleTask(ctx, cp.BatchID, task)
		w.collector.Consolidations.WithLabelValues(string(outcome)).Inc()
		if outcome == outcomeSkipped {
			continue
		}
		cp.EntriesProcessed++
		if outcome == outcomeFailed {
			cp.EntriesFailed++
		}
	}

	if rate := cp.FailureRate(); rate > w.FailureRateThreshold {
		w.collector.BatchFailureAlerts.Inc()
		w.alerts.BatchFailure(ctx, cp.BatchID, cp.EntriesProcessed, cp.EntriesFailed, rate)
	}

	if err := w.checkpoints.Complete(ctx, cp.BatchID); err != nil {
		w.logger.Error("checkpoint complete failed", zap.Error(err))
	}
}

// handleTask resolves one queue delivery against the WAL, which is the
// source of truth; the stream message is acked in every disposition so the
// pending list never wedges. Ack follows checkpoint advance.
func (w *ConsolidationWorker) handleTask(ctx context.Context, batchID uuid.UUID, task domain.QueueTask) entryOutcome {
	entry, err := w.wal.GetByID(ctx, task.EntryID)
	if err != nil {
		w.logger.Warn("queued entry not found, dropping",
			zap.String("entry_id", task.EntryID.String()),
			zap.Error(err))
		w.ack(ctx, task.MessageID)
		return outcomeSkipped
	}

	outcome := w.processEntry(ctx, entry)
	if outcome != outcomeSkipped {
		if err := w.checkpoints.Advance(ctx, batchID, entry.ID, entry.Seq, outcome == outcomeCompleted); err != nil {
			w.logger.Error("checkpoint advance failed", zap.Error(err))
		}
	}
	w.ack(ctx, task.MessageID)
	return outcome
}

// processEntry claims the entry, runs consolidation and records the result.
// Redelivered completed entries are a no-op, which is what makes the
// at-least-once queue safe.
func (w *ConsolidationWorker) processEntry(ctx context.Context, entry *domain.WALEntry) entryOutcome {
	switch entry.Status {
	case domain.WALStatusCompleted, domain.WALStatusDeadLetter:
		return outcomeSkipped

	case domain.WALStatusPending:
		if err := w.wal.MarkStatus(ctx, entry.ID, domain.WALStatusPending, domain.WALStatusProcessing, entry.RetryCount); err != nil {
			// Lost the claim race; the winner owns this entry.
			w.logger.Debug("entry claim lost", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			return outcomeSkipped
		}

	case domain.WALStatusFailed:
		if entry.RetryCount >= w.MaxRetries {
			w.deadLetter(ctx, entry)
			return outcomeSkipped
		}
		if err := w.wal.MarkStatus(ctx, entry.ID, domain.WALStatusFailed, domain.WALStatusProcessing, entry.RetryCount); err != nil {
			w.logger.Debug("entry claim lost", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			return outcomeSkipped
		}

	case domain.WALStatusProcessing:
		// A crashed worker left it mid-flight; the claim idle threshold or
		// the resume scan delivered it to us, so take over without a mark.
	}

	start := time.Now()
	err := w.consolidateEntry(ctx, entry)
	w.collector.ConsolidationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		w.logger.Warn("consolidation failed",
			zap.String("entry_id", entry.ID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(err))
		if recErr := w.wal.RecordError(ctx, entry.ID, err.Error()); recErr != nil {
			w.logger.Error("record error failed", zap.Error(recErr))
		}
		retries := entry.RetryCount + 1
		if markErr := w.wal.MarkStatus(ctx, entry.ID, domain.WALStatusProcessing, domain.WALStatusFailed, retries); markErr != nil {
			w.logger.Error("mark failed failed", zap.String("entry_id", entry.ID.String()), zap.Error(markErr))
			return outcomeFailed
		}
		entry.RetryCount = retries
		entry.Status = domain.WALStatusFailed
		entry.LastError = err.Error()
		if retries >= w.MaxRetries {
			w.deadLetter(ctx, entry)
		}
		return outcomeFailed
	}

	if markErr := w.wal.MarkStatus(ctx, entry.ID, domain.WALStatusProcessing, domain.WALStatusCompleted, entry.RetryCount); markErr != nil {
		w.logger.Error("mark completed failed", zap.String("entry_id", entry.ID.String()), zap.Error(markErr))
	}
	w.retrieval.InvalidateUser(entry.UserID)
	return outcomeCompleted
}

func (w *ConsolidationWorker) deadLetter(ctx context.Context, entry *domain.WALEntry) {
	if err := w.wal.MarkStatus(ctx, entry.ID, domain.WALStatusFailed, domain.WALStatusDeadLetter, entry.RetryCount); err != nil {
		w.logger.Error("dead-letter mark failed", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		return
	}
	w.collector.DeadLetters.Inc()
	w.alerts.DeadLetter(ctx, entry.ID, entry.RetryCount, entry.LastError)
	w.logger.Error("entry dead-lettered",
		zap.String("entry_id", entry.ID.String()),
		zap.Int("retry_count", entry.RetryCount),
		zap.String("last_error", entry.LastError))
}

// consolidateEntry is the per-entry pipeline: extract facts, resolve
// entities, then per fact either revise the belief it collides with or
// insert a new memory, and finish with graph writes. All LLM calls happen
// before the fact's first write.
func (w *ConsolidationWorker) consolidateEntry(ctx context.Context, entry *domain.WALEntry) error {
	var payload domain.InteractionPayload
	if err := json.Unmarshal(entry.RawPayload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.Content) == "" {
		return nil
	}

	facts, err := w.llmClient.ExtractFacts(ctx, payload.Content)
	if err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}
	if len(facts) == 0 {
		return nil
	}

	extracted, err := w.llmClient.ExtractEntities(ctx, payload.Content)
	if err != nil {
		// Entities enrich the graph but do not gate consolidation.
		w.logger.Warn("entity extraction failed", zap.String("entry_id", entry.ID.String()), zap.Error(err))
		extracted = nil
	}

	for i, fact := range facts {
		if err := w.consolidateFact(ctx, entry, payload, fact, extracted); err != nil {
			return fmt.Errorf("fact %d: %w", i, err)
		}
	}
	return nil
}

func (w *ConsolidationWorker) consolidateFact(
	ctx context.Context,
	entry *domain.WALEntry,
	payload domain.InteractionPayload,
	fact domain.ExtractedFact,
	extracted []domain.ExtractedEntity,
) error {
	candidate := domain.CandidateFact{
		Type:         fact.Type,
		Content:      fact.Content,
		EvidenceType: fact.EvidenceType,
		Confidence:   fact.EvidenceType.InitialConfidence(),
	}

	emb, err := w.embedder.Embed(ctx, fact.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	candidate.Embedding = emb

	conflictSimilar, err := w.memories.FindSimilar(ctx, entry.UserID, emb, flagSimilarityThreshold)
	if err != nil {
		return fmt.Errorf("find similar: %w", err)
	}
	relationSimilar, err := w.memories.FindSimilar(ctx, entry.UserID, emb, relationSimilarityFloor)
	if err != nil {
		return fmt.Errorf("find relation candidates: %w", err)
	}
	if len(relationSimilar) > relationDetectLimit {
		relationSimilar = relationSimilar[:relationDetectLimit]
	}

	var detected []domain.DetectedRelationship
	if len(relationSimilar) > 0 {
		memories := make([]domain.Memory, len(relationSimilar))
		for i, sim := range relationSimilar {
			memories[i] = sim.Memory
		}
		detected, err = w.llmClient.DetectRelationships(ctx, fact.Content, memories)
		if err != nil {
			w.logger.Warn("relationship detection failed", zap.String("entry_id", entry.ID.String()), zap.Error(err))
			detected = nil
		}
	}

	var subject *domain.Memory
	if len(conflictSimilar) > 0 {
		best := conflictSimilar[0].Memory
		related, relErr := w.memories.ListRelated(ctx, best.ID, relatedLimit)
		if relErr != nil {
			w.logger.Warn("related lookup failed", zap.String("memory_id", best.ID.String()), zap.Error(relErr))
			related = nil
		}

		conflict := w.detector.Classify(ctx, candidate, best, related)
		record, revErr := w.revisions.Revise(ctx, conflict, candidate, best, entry.ID)
		if revErr != nil {
			return fmt.Errorf("revise: %w", revErr)
		}

		predicted := NaiveDelta(candidate.Confidence, best.Confidence)
		actual := record.NewConfidence - record.PriorConfidence
		if calErr := w.calibration.RecordRevision(ctx, entry.UserID, best.ID, entry.ID, predicted, actual); calErr != nil {
			w.logger.Warn("calibration observation failed", zap.String("memory_id", best.ID.String()), zap.Error(calErr))
		}
		subject = &best
	} else {
		mem := &domain.Memory{
			UserID:       entry.UserID,
			Type:         fact.Type,
			Content:      fact.Content,
			Embedding:    emb,
			Source:       payload.Source,
			EvidenceType: fact.EvidenceType,
			Confidence:   candidate.Confidence,
		}
		if createErr := w.memories.Create(ctx, mem); createErr != nil {
			return fmt.Errorf("create memory: %w", createErr)
		}
		subject = mem
	}

	w.writeEdges(ctx, subject.ID, detected, relationSimilar)
	if len(extracted) > 0 {
		w.resolver.LinkEntities(ctx, entry.UserID, subject.ID, extracted)
	}
	return nil
}

// writeEdges commits LLM-detected relations plus thematic links for very
// similar memories. Edge failures are logged, not fatal: a missing edge
// degrades recall ranking, it does not corrupt beliefs.
func (w *ConsolidationWorker) writeEdges(ctx context.Context, sourceID uuid.UUID, detected []domain.DetectedRelationship, similar []domain.MemoryWithScore) {
	for _, rel := range detected {
		if rel.TargetID == sourceID || rel.TargetID == uuid.Nil {
			continue
		}
		edge := &domain.GraphEdge{
			SourceID:     sourceID,
			TargetID:     rel.TargetID,
			RelationType: rel.RelationType,
			Strength:     rel.Strength,
		}
		if err := w.graph.CreateEdge(ctx, edge); err != nil {
			w.logger.Warn("edge write failed",
				zap.String("target_id", rel.TargetID.String()),
				zap.String("relation", string(rel.RelationType)),
				zap.Error(err))
		}
	}

	for _, sim := range similar {
		if sim.ID == sourceID || sim.Score < thematicEdgeFloor {
			continue
		}
		edge := &domain.GraphEdge{
			SourceID:     sourceID,
			TargetID:     sim.ID,
			RelationType: domain.RelationThematic,
			Strength:     sim.Score,
		}
		if err := w.graph.CreateEdge(ctx, edge); err != nil {
			w.logger.Warn("thematic edge write failed",
				zap.String("target_id", sim.ID.String()),
				zap.Error(err))
		}
	}
}

func (w *ConsolidationWorker) ack(ctx context.Context, messageID string) {
	if err := w.queue.Ack(ctx, messageID); err != nil {
		w.logger.Warn("ack failed", zap.String("message_id", messageID), zap.Error(err))
	}
}
