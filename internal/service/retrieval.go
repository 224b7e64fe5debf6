package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

const (
	DefaultRecallTopK = 10
	// DefaultFreshnessHalfLife is how long it takes an untouched memory to
	// lose half its recall weight.
	DefaultFreshnessHalfLife = 30 * 24 * time.Hour

	DefaultRecallCacheSize = 512
	DefaultRecallCacheTTL  = 30 * time.Second
)

// ScoreBreakdown explains how one recall score was assembled.
type ScoreBreakdown struct {
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
	Freshness  float64 `json:"freshness"`
	FinalScore float64 `json:"final_score"`
}

type ScoredMemory struct {
	domain.MemoryWithScore
	Breakdown *ScoreBreakdown `json:"score_breakdown,omitempty"`
}

// RecallScorer ranks raw similarity hits by blending similarity with the
// belief's confidence and its freshness.
type RecallScorer struct {
	FreshnessHalfLife time.Duration
}

func NewRecallScorer() *RecallScorer {
	return &RecallScorer{FreshnessHalfLife: DefaultFreshnessHalfLife}
}

func (s *RecallScorer) Score(mem domain.MemoryWithScore, now time.Time) ScoredMemory {
	similarity := float64(mem.Score)
	confidence := float64(mem.Confidence)

	age := now.Sub(mem.UpdatedAt)
	if age < 0 {
		age = 0
	}
	freshness := math.Exp2(-age.Hours() / s.FreshnessHalfLife.Hours())

	finalScore := similarity * confidence * freshness

	return ScoredMemory{
		MemoryWithScore: domain.MemoryWithScore{
			Memory: mem.Memory,
			Score:  float32(finalScore),
		},
		Breakdown: &ScoreBreakdown{
			Similarity: similarity,
			Confidence: confidence,
			Freshness:  freshness,
			FinalScore: finalScore,
		},
	}
}

func (s *RecallScorer) ScoreAndRank(memories []domain.MemoryWithScore, now time.Time) []ScoredMemory {
	scored := make([]ScoredMemory, 0, len(memories))
	for _, mem := range memories {
		scored = append(scored, s.Score(mem, now))
	}
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Breakdown.FinalScore > scored[j].Breakdown.FinalScore
	})
	return scored
}

type cacheEntry struct {
	results []ScoredMemory
	expires time.Time
}

// recallCache is a TTL plus capacity bound map. When full it evicts the
// entry closest to expiry, which under a fixed TTL is the oldest one.
type recallCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

func newRecallCache(maxSize int, ttl time.Duration) *recallCache {
	return &recallCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *recallCache) get(key string) ([]ScoredMemory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.results, true
}

func (c *recallCache) set(key string, results []ScoredMemory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.entries) >= c.maxSize {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) >= c.maxSize {
		var oldest string
		var oldestExpiry time.Time
		for k, e := range c.entries {
			if oldest == "" || e.expires.Before(oldestExpiry) {
				oldest = k
				oldestExpiry = e.expires
			}
		}
		delete(c.entries, oldest)
	}

	c.entries[key] = cacheEntry{results: results, expires: now.Add(c.ttl)}
}

func (c *recallCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

func (c *recallCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RetrievalService is the read-only recall surface. It holds a
// domain.MemorySearcher rather than the full store, so nothing reachable
// from here can write to the graph.
type RetrievalService struct {
	searcher  domain.MemorySearcher
	embedder  domain.EmbeddingClient
	scorer    *RecallScorer
	cache     *recallCache
	collector *metrics.Collector
	logger    *zap.Logger
}

func NewRetrievalService(
	searcher domain.MemorySearcher,
	embedder domain.EmbeddingClient,
	collector *metrics.Collector,
	logger *zap.Logger,
) *RetrievalService {
	return &RetrievalService{
		searcher:  searcher,
		embedder:  embedder,
		scorer:    NewRecallScorer(),
		cache:     newRecallCache(DefaultRecallCacheSize, DefaultRecallCacheTTL),
		collector: collector,
		logger:    logger,
	}
}

func recallCacheKey(userID uuid.UUID, query string, opts domain.RecallOpts) string {
	memType := ""
	if opts.MemoryType != nil {
		memType = string(*opts.MemoryType)
	}
	return fmt.Sprintf("%s|%s|%d|%s|%.2f", userID, query, opts.TopK, memType, opts.MinConfidence)
}

// Recall embeds the query, fetches similar memories, and ranks them. Results
// are cached briefly; the slow path invalidates a user's entries after it
// writes.
func (s *RetrievalService) Recall(ctx context.Context, userID uuid.UUID, query string, opts domain.RecallOpts) ([]ScoredMemory, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultRecallTopK
	}

	key := recallCacheKey(userID, query, opts)
	if results, ok := s.cache.get(key); ok {
		s.collector.CacheHits.Inc()
		return results, nil
	}
	s.collector.CacheMisses.Inc()

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.searcher.Recall(ctx, userID, embedding, opts)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	scored := s.scorer.ScoreAndRank(hits, time.Now())
	s.cache.set(key, scored)
	return scored, nil
}

// FindSimilar is the uncached similarity lookup used by the fast path for
// conflict flagging; it reuses an embedding the caller already has.
func (s *RetrievalService) FindSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, threshold float32) ([]domain.MemoryWithScore, error) {
	return s.searcher.FindSimilar(ctx, userID, embedding, threshold)
}

func (s *RetrievalService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	return s.searcher.GetByID(ctx, id)
}

// InvalidateUser drops every cached recall for the user. Called after the
// slow path mutates their graph.
func (s *RetrievalService) InvalidateUser(userID uuid.UUID) {
	s.cache.invalidatePrefix(userID.String() + "|")
}
