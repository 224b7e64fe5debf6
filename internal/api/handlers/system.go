package handlers

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seracourt/ripple/internal/buildconfig"
	"github.com/seracourt/ripple/internal/queue"
)

type SystemHandler struct {
	db    *pgxpool.Pool
	queue *queue.RedisQueue
}

func NewSystemHandler(db *pgxpool.Pool, queue *queue.RedisQueue) *SystemHandler {
	return &SystemHandler{db: db, queue: queue}
}

// Health pings both datastores. Either failing flips the response to 503
// so orchestrators stop routing traffic here; the body names the culprit.
// Queue depth rides along when available, as the backlog signal.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{"postgres": "ok", "redis": "ok"}

	if err := h.db.Ping(r.Context()); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.queue.Ping(r.Context()); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if depth, err := h.queue.Depth(r.Context()); err == nil {
		body["queue_depth"] = depth
	}
	writeJSON(w, status, body)
}

func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildconfig.VersionInfo())
}
