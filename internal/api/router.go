package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/api/handlers"
	mw "github.com/seracourt/ripple/internal/api/middleware"
	"github.com/seracourt/ripple/internal/config"
	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/embedding"
	"github.com/seracourt/ripple/internal/llm"
	"github.com/seracourt/ripple/internal/metrics"
	"github.com/seracourt/ripple/internal/queue"
	"github.com/seracourt/ripple/internal/service"
	"github.com/seracourt/ripple/internal/store"
	"github.com/seracourt/ripple/internal/tools"
)

// App holds the router and the background services whose lifecycle main
// owns: the consolidation worker, the maintenance scheduler, and the async
// decision logger.
type App struct {
	Router      *chi.Mux
	Worker      *service.ConsolidationWorker
	Scheduler   *service.Scheduler
	DecisionLog *service.DecisionLogger
	Collector   *metrics.Collector
}

// NewApp wires stores, services, handlers and middleware. Provider
// construction fails hard: a worker with a nil LLM client would poison
// every batch it touched.
func NewApp(db *pgxpool.Pool, bridge *queue.RedisQueue, registry *tools.Registry, logger *zap.Logger) (*App, error) {
	// Stores
	walStore := store.NewWALStore(db)
	checkpointStore := store.NewCheckpointStore(db)
	memoryStore := store.NewMemoryStore(db)
	graphStore := store.NewGraphStore(db)
	entityStore := store.NewEntityStore(db)
	revisionStore := store.NewRevisionStore(db)
	policyStore := store.NewRevisionPolicyStore(db)
	calibrationStore := store.NewCalibrationStore(db)
	decisionStore := store.NewDecisionLogStore(db)

	// External clients via provider factory
	llmClient, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey())
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	logger.Info("llm client initialized", zap.String("provider", config.LLMProvider()))

	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))

	collector := metrics.NewCollector()

	// Services
	alerts := service.NewLogAlertSink(logger)
	detector := service.NewConflictDetector(llmClient, logger)
	resolver := service.NewEntityResolver(entityStore, embeddingClient, logger)
	revisionEngine := service.NewRevisionEngine(memoryStore, revisionStore, policyStore, logger)

	calibrationSvc := service.NewCalibrationService(calibrationStore, alerts, collector, logger)
	calibrationSvc.WindowDays = config.MartingaleWindowDays()

	retrievalSvc := service.NewRetrievalService(memoryStore, embeddingClient, collector, logger)

	fastPath := service.NewFastPathService(walStore, bridge, retrievalSvc, llmClient, embeddingClient, detector, collector, logger)
	fastPath.SetJoinTimeout(config.FastPathTimeout())

	worker := service.NewConsolidationWorker(
		walStore, bridge, checkpointStore, memoryStore, graphStore,
		resolver, detector, revisionEngine, calibrationSvc, retrievalSvc,
		llmClient, embeddingClient, alerts, collector,
		config.WorkerID(), logger,
	)
	worker.BatchSize = int64(config.WorkerBatchSize())
	worker.MaxRetries = config.MaxRetries()
	worker.DequeueBlock = config.WorkerPollInterval()
	worker.FailureRateThreshold = config.FailureAlertThreshold()

	decisionLogger := service.NewDecisionLogger(decisionStore, collector, logger)
	gate := service.NewVoIGate(registry, policyStore, memoryStore, llmClient, decisionLogger, collector, logger)

	scheduler := service.NewScheduler(walStore, bridge, calibrationSvc, decisionStore, collector, logger)
	scheduler.SweepSchedule = "@every " + config.SweepInterval().String()
	scheduler.MaxRetries = config.MaxRetries()

	// Handlers
	interactionHandler := handlers.NewInteractionHandler(fastPath)
	walHandler := handlers.NewWALHandler(walStore, bridge)
	memoryHandler := handlers.NewMemoryHandler(retrievalSvc, revisionStore)
	actionHandler := handlers.NewActionHandler(gate)
	policyHandler := handlers.NewPolicyHandler(policyStore)
	calibrationHandler := handlers.NewCalibrationHandler(calibrationStore)
	systemHandler := handlers.NewSystemHandler(db, bridge)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics(collector))
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Operational surface (no auth)
	r.Get("/healthz", systemHandler.Health)
	r.Get("/version", systemHandler.Version)
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.BearerAuth(config.APIKey()))

		r.Post("/interactions", interactionHandler.Create)

		r.Route("/wal/entries", func(r chi.Router) {
			r.Get("/", walHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", walHandler.GetByID)
				r.Post("/requeue", walHandler.Requeue)
			})
		})

		r.Route("/memories", func(r chi.Router) {
			r.Get("/recall", memoryHandler.Recall)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Get("/revisions", memoryHandler.ListRevisions)
			})
		})

		r.Post("/actions/{tool}", actionHandler.Gate)

		r.Route("/users/{id}/policy", func(r chi.Router) {
			r.Get("/", policyHandler.Get)
			r.Put("/", policyHandler.Upsert)
		})

		r.Get("/calibration/{user_id}", calibrationHandler.Get)
	})

	return &App{
		Router:      r,
		Worker:      worker,
		Scheduler:   scheduler,
		DecisionLog: decisionLogger,
		Collector:   collector,
	}, nil
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.WALStore            = (*store.WALStore)(nil)
	_ domain.CheckpointStore     = (*store.CheckpointStore)(nil)
	_ domain.MemoryStore         = (*store.MemoryStore)(nil)
	_ domain.GraphStore          = (*store.GraphStore)(nil)
	_ domain.EntityStore         = (*store.EntityStore)(nil)
	_ domain.RevisionStore       = (*store.RevisionStore)(nil)
	_ domain.RevisionPolicyStore = (*store.RevisionPolicyStore)(nil)
	_ domain.CalibrationStore    = (*store.CalibrationStore)(nil)
	_ domain.DecisionLogStore    = (*store.DecisionLogStore)(nil)
	_ domain.QueueBridge         = (*queue.RedisQueue)(nil)
	_ domain.AlertSink           = (*service.LogAlertSink)(nil)
	_ domain.EmbeddingClient     = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient     = (*embedding.MockClient)(nil)
	_ domain.LLMClient           = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient           = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient           = (*llm.MockClient)(nil)
)
