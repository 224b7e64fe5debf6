package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/store"
)

// mockMemoryStore implements domain.MemoryStore for testing. Recall and
// FindSimilar return the configured slices rather than doing vector math.
type mockMemoryStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*domain.Memory

	recallResults  []domain.MemoryWithScore
	similarResults []domain.MemoryWithScore
	relatedResults []domain.Memory

	updateConfidenceCalls int
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{memories: make(map[uuid.UUID]*domain.Memory)}
}

func (m *mockMemoryStore) put(mem *domain.Memory) *domain.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	m.memories[mem.ID] = mem
	return mem
}

func (m *mockMemoryStore) Create(ctx context.Context, mem *domain.Memory) error {
	m.put(mem)
	return nil
}

func (m *mockMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *mockMemoryStore) Recall(ctx context.Context, userID uuid.UUID, embedding []float32, opts domain.RecallOpts) ([]domain.MemoryWithScore, error) {
	return m.recallResults, nil
}

func (m *mockMemoryStore) FindSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32) ([]domain.MemoryWithScore, error) {
	return m.similarResults, nil
}

func (m *mockMemoryStore) UpdateConfidence(ctx context.Context, id uuid.UUID, confidence float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.memories[id]
	if !ok {
		return store.ErrNotFound
	}
	mem.Confidence = confidence
	mem.RevisionCount++
	m.updateConfidenceCalls++
	return nil
}

func (m *mockMemoryStore) ListRelated(ctx context.Context, memoryID uuid.UUID, limit int) ([]domain.Memory, error) {
	return m.relatedResults, nil
}

func (m *mockMemoryStore) ListRulesByUser(ctx context.Context, userID uuid.UUID) ([]domain.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rules []domain.Memory
	for _, mem := range m.memories {
		if mem.UserID == userID && mem.IsRule() {
			rules = append(rules, *mem)
		}
	}
	return rules, nil
}

// mockWALStore implements domain.WALStore with an in-memory map and a
// monotone sequence counter.
type mockWALStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.WALEntry
	byKey   map[string]uuid.UUID
	nextSeq int64

	failCreate error
}

func newMockWALStore() *mockWALStore {
	return &mockWALStore{
		entries: make(map[uuid.UUID]*domain.WALEntry),
		byKey:   make(map[string]uuid.UUID),
	}
}

func (m *mockWALStore) CreateEntry(ctx context.Context, e *domain.WALEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return false, m.failCreate
	}
	if id, ok := m.byKey[e.IdempotencyKey]; ok {
		*e = *m.entries[id]
		return false, nil
	}
	m.nextSeq++
	e.ID = uuid.New()
	e.Seq = m.nextSeq
	e.Status = domain.WALStatusPending
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.entries[e.ID] = &cp
	m.byKey[e.IdempotencyKey] = e.ID
	return true, nil
}

func (m *mockWALStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WALEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockWALStore) GetPending(ctx context.Context, limit int) ([]domain.WALEntry, error) {
	return m.listByStatus(domain.WALStatusPending, limit), nil
}

func (m *mockWALStore) listByStatus(status domain.WALStatus, limit int) []domain.WALEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WALEntry
	for _, e := range m.entries {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *mockWALStore) MarkStatus(ctx context.Context, id uuid.UUID, from, to domain.WALStatus, retryCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	e, ok := m.entries[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != from {
		return store.ErrStatusConflict
	}
	e.Status = to
	e.RetryCount = retryCount
	e.UpdatedAt = time.Now()
	return nil
}

func (m *mockWALStore) RecordError(ctx context.Context, id uuid.UUID, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.LastError = msg
	}
	return nil
}

func (m *mockWALStore) ListAfterSeq(ctx context.Context, afterSeq int64, statuses []domain.WALStatus, limit int) ([]domain.WALEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := make(map[domain.WALStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []domain.WALEntry
	for _, e := range m.entries {
		if e.Seq > afterSeq && allowed[e.Status] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockWALStore) ListByStatus(ctx context.Context, status domain.WALStatus, limit int) ([]domain.WALEntry, error) {
	return m.listByStatus(status, limit), nil
}

func (m *mockWALStore) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.WALEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.WALEntry
	for _, e := range m.entries {
		if e.Status == domain.WALStatusPending && e.CreatedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockWALStore) ListRetryable(ctx context.Context, maxRetries int, limit int) ([]domain.WALEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WALEntry
	for _, e := range m.entries {
		if e.Status == domain.WALStatusFailed && e.RetryCount < maxRetries {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockWALStore) Requeue(ctx context.Context, id uuid.UUID) (*domain.WALEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.Status != domain.WALStatusDeadLetter {
		return nil, store.ErrStatusConflict
	}
	e.Status = domain.WALStatusPending
	e.RetryCount = 0
	e.LastError = ""
	cp := *e
	return &cp, nil
}

// mockQueue implements domain.QueueBridge backed by a slice.
type mockQueue struct {
	mu       sync.Mutex
	tasks    []domain.QueueTask
	acked    []string
	failNext error
}

func newMockQueue() *mockQueue {
	return &mockQueue{}
}

func (q *mockQueue) Enqueue(ctx context.Context, entryID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext != nil {
		err := q.failNext
		q.failNext = nil
		return err
	}
	q.tasks = append(q.tasks, domain.QueueTask{
		MessageID: uuid.NewString(),
		EntryID:   entryID,
	})
	return nil
}

func (q *mockQueue) Dequeue(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.QueueTask, error) {
	q.mu.Lock()
	n := int(count)
	if n > len(q.tasks) {
		n = len(q.tasks)
	}
	if n == 0 {
		q.mu.Unlock()
		// Mirror the stream client: an empty read waits out the block.
		if block > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(block):
			}
		}
		return nil, nil
	}
	out := make([]domain.QueueTask, n)
	copy(out, q.tasks[:n])
	q.tasks = q.tasks[n:]
	q.mu.Unlock()
	return out, nil
}

func (q *mockQueue) Ack(ctx context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, messageID)
	return nil
}

func (q *mockQueue) enqueuedIDs() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]uuid.UUID, len(q.tasks))
	for i, t := range q.tasks {
		ids[i] = t.EntryID
	}
	return ids
}

// mockCheckpointStore implements domain.CheckpointStore.
type mockCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[uuid.UUID]*domain.Checkpoint
	order       []uuid.UUID
	advances    int
}

func newMockCheckpointStore() *mockCheckpointStore {
	return &mockCheckpointStore{checkpoints: make(map[uuid.UUID]*domain.Checkpoint)}
}

func (m *mockCheckpointStore) StartBatch(ctx context.Context, workerID string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := &domain.Checkpoint{
		BatchID:   uuid.New(),
		WorkerID:  workerID,
		CreatedAt: time.Now(),
	}
	m.checkpoints[cp.BatchID] = cp
	m.order = append(m.order, cp.BatchID)
	out := *cp
	return &out, nil
}

func (m *mockCheckpointStore) Advance(ctx context.Context, batchID uuid.UUID, entryID uuid.UUID, entrySeq int64, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[batchID]
	if !ok {
		return store.ErrNotFound
	}
	id := entryID
	cp.LastEntryID = &id
	if entrySeq > cp.LastEntrySeq {
		cp.LastEntrySeq = entrySeq
	}
	cp.EntriesProcessed++
	if !success {
		cp.EntriesFailed++
	}
	m.advances++
	return nil
}

func (m *mockCheckpointStore) Complete(ctx context.Context, batchID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[batchID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	cp.CompletedAt = &now
	return nil
}

func (m *mockCheckpointStore) LoadLatest(ctx context.Context, workerID string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		cp := m.checkpoints[m.order[i]]
		if cp.WorkerID == workerID && cp.CompletedAt == nil {
			out := *cp
			return &out, nil
		}
	}
	return nil, nil
}

// mockRevisionStore appends records and serves them back per memory.
type mockRevisionStore struct {
	mu      sync.Mutex
	records []domain.RevisionRecord
}

func newMockRevisionStore() *mockRevisionStore {
	return &mockRevisionStore{}
}

func (m *mockRevisionStore) Create(ctx context.Context, r *domain.RevisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records = append(m.records, *r)
	return nil
}

func (m *mockRevisionStore) GetByMemoryID(ctx context.Context, memoryID uuid.UUID) ([]domain.RevisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RevisionRecord
	for _, r := range m.records {
		if r.MemoryID == memoryID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRevisionStore) CountByMemoryID(ctx context.Context, memoryID uuid.UUID) (int, error) {
	records, _ := m.GetByMemoryID(ctx, memoryID)
	return len(records), nil
}

// mockPolicyStore returns store.ErrNotFound for unknown users.
type mockPolicyStore struct {
	mu       sync.Mutex
	policies map[uuid.UUID]*domain.RevisionPolicy
	failGet  error
}

func newMockPolicyStore() *mockPolicyStore {
	return &mockPolicyStore{policies: make(map[uuid.UUID]*domain.RevisionPolicy)}
}

func (m *mockPolicyStore) Upsert(ctx context.Context, p *domain.RevisionPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.policies[p.UserID] = &cp
	return nil
}

func (m *mockPolicyStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.RevisionPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	p, ok := m.policies[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// mockGraphStore records edges; CountContradicting is configured per memory.
type mockGraphStore struct {
	mu            sync.Mutex
	edges         []domain.GraphEdge
	contradicting map[uuid.UUID]int
}

func newMockGraphStore() *mockGraphStore {
	return &mockGraphStore{contradicting: make(map[uuid.UUID]int)}
}

func (m *mockGraphStore) CreateEdge(ctx context.Context, edge *domain.GraphEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edge.ID = uuid.New()
	m.edges = append(m.edges, *edge)
	return nil
}

func (m *mockGraphStore) GetEdge(ctx context.Context, sourceID, targetID uuid.UUID, relationType domain.RelationType) (*domain.GraphEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edges {
		if e.SourceID == sourceID && e.TargetID == targetID && e.RelationType == relationType {
			cp := e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockGraphStore) GetNeighbors(ctx context.Context, memoryID uuid.UUID, relationTypes []domain.RelationType) ([]domain.GraphEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GraphEdge
	for _, e := range m.edges {
		if e.SourceID == memoryID || e.TargetID == memoryID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockGraphStore) CountContradicting(ctx context.Context, memoryID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contradicting[memoryID], nil
}

// mockEntityStore resolves by exact name or alias; embedding similarity
// returns the configured slice.
type mockEntityStore struct {
	mu              sync.Mutex
	entities        map[uuid.UUID]*domain.Entity
	mentions        []domain.EntityMention
	similarEntities []domain.Entity
}

func newMockEntityStore() *mockEntityStore {
	return &mockEntityStore{entities: make(map[uuid.UUID]*domain.Entity)}
}

func (m *mockEntityStore) Create(ctx context.Context, e *domain.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *mockEntityStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockEntityStore) FindByNameOrAlias(ctx context.Context, userID uuid.UUID, name string) (*domain.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lower := strings.ToLower(name)
	for _, e := range m.entities {
		if e.UserID != userID {
			continue
		}
		if strings.ToLower(e.Name) == lower {
			cp := *e
			return &cp, nil
		}
		for _, a := range e.Aliases {
			if strings.ToLower(a) == lower {
				cp := *e
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockEntityStore) FindByEmbeddingSimilarity(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32, limit int) ([]domain.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.similarEntities
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockEntityStore) AddAlias(ctx context.Context, id uuid.UUID, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entities[id]; ok {
		e.Aliases = append(e.Aliases, alias)
	}
	return nil
}

func (m *mockEntityStore) RecordMention(ctx context.Context, mention *domain.EntityMention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mentions = append(m.mentions, *mention)
	return nil
}

func (m *mockEntityStore) GetEntitiesForMemory(ctx context.Context, memoryID uuid.UUID) ([]domain.Entity, error) {
	return nil, nil
}

func (m *mockEntityStore) GetMemoriesForEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]domain.Memory, error) {
	return nil, nil
}

// mockCalibrationStore collects observations and results in memory.
type mockCalibrationStore struct {
	mu           sync.Mutex
	observations []domain.BeliefUpdateObservation
	results      map[uuid.UUID]*domain.MartingaleResult
}

func newMockCalibrationStore() *mockCalibrationStore {
	return &mockCalibrationStore{results: make(map[uuid.UUID]*domain.MartingaleResult)}
}

func (m *mockCalibrationStore) RecordObservation(ctx context.Context, o *domain.BeliefUpdateObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	m.observations = append(m.observations, *o)
	return nil
}

func (m *mockCalibrationStore) ListObservationsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.BeliefUpdateObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BeliefUpdateObservation
	for _, o := range m.observations {
		if o.UserID == userID && !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockCalibrationStore) ListDistinctUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, o := range m.observations {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			out = append(out, o.UserID)
		}
	}
	return out, nil
}

func (m *mockCalibrationStore) UpsertResult(ctx context.Context, r *domain.MartingaleResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.results[r.UserID] = &cp
	return nil
}

func (m *mockCalibrationStore) GetResult(ctx context.Context, userID uuid.UUID) (*domain.MartingaleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// mockDecisionLog captures VoI decisions; safe for the async logger.
type mockDecisionLog struct {
	mu        sync.Mutex
	decisions []domain.VoIDecision
	failNext  error
	failRate  error
}

func newMockDecisionLog() *mockDecisionLog {
	return &mockDecisionLog{}
}

func (m *mockDecisionLog) Create(ctx context.Context, d *domain.VoIDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.decisions = append(m.decisions, *d)
	return nil
}

func (m *mockDecisionLog) ClarifyRateSince(ctx context.Context, since time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRate != nil {
		return 0, 0, m.failRate
	}
	clarified, total := 0, 0
	for _, d := range m.decisions {
		if d.CreatedAt.Before(since) {
			continue
		}
		total++
		if d.ShouldClarify {
			clarified++
		}
	}
	return clarified, total, nil
}

func (m *mockDecisionLog) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.VoIDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VoIDecision
	for i := len(m.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.decisions[i].UserID == userID {
			out = append(out, m.decisions[i])
		}
	}
	return out, nil
}

func (m *mockDecisionLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decisions)
}

// mockAlertSink records fired alerts.
type mockAlertSink struct {
	mu          sync.Mutex
	batchAlerts []uuid.UUID
	reflections []uuid.UUID
	deadLetters []uuid.UUID
}

func newMockAlertSink() *mockAlertSink {
	return &mockAlertSink{}
}

func (m *mockAlertSink) BatchFailure(ctx context.Context, batchID uuid.UUID, processed, failed int, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchAlerts = append(m.batchAlerts, batchID)
}

func (m *mockAlertSink) ReflectionTrigger(ctx context.Context, userID uuid.UUID, result *domain.MartingaleResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reflections = append(m.reflections, userID)
}

func (m *mockAlertSink) DeadLetter(ctx context.Context, entryID uuid.UUID, retryCount int, lastError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, entryID)
}
