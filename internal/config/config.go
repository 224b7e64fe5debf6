package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by RIPPLE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("RIPPLE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// RedisURL returns the Redis connection string for the queue bridge.
// Defaults to a local instance.
func RedisURL() string {
	u := os.Getenv("REDIS_URL")
	if u == "" {
		return "redis://localhost:6379/0"
	}
	return u
}

// QueueStream returns the Redis stream name carrying WAL entry IDs.
func QueueStream() string {
	s := os.Getenv("QUEUE_STREAM")
	if s == "" {
		return "ripple:wal"
	}
	return s
}

// QueueGroup returns the consumer group name for slow path workers.
func QueueGroup() string {
	g := os.Getenv("QUEUE_GROUP")
	if g == "" {
		return "consolidators"
	}
	return g
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// APIKey returns the static bearer token protecting the HTTP surface.
// Empty means auth is disabled (local development).
func APIKey() string {
	return os.Getenv("API_KEY")
}

// FastPathTimeout bounds the extraction/embedding join on the fast path.
// Defaults to 150ms, leaving headroom inside the ~200ms response budget.
func FastPathTimeout() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("FASTPATH_TIMEOUT_MS"))
	if err != nil || ms <= 0 {
		return 150 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// WorkerID identifies this worker instance for checkpoint leases.
// Defaults to the hostname.
func WorkerID() string {
	id := os.Getenv("WORKER_ID")
	if id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return "worker-1"
	}
	return host
}

// WorkerBatchSize returns how many queued entries one batch consumes.
// Defaults to 10.
func WorkerBatchSize() int {
	n, err := strconv.Atoi(os.Getenv("WORKER_BATCH_SIZE"))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

// WorkerPollInterval returns how long the worker blocks waiting for queue
// messages before re-polling. Defaults to 5s.
func WorkerPollInterval() time.Duration {
	secs, err := strconv.Atoi(os.Getenv("WORKER_POLL_SECONDS"))
	if err != nil || secs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(secs) * time.Second
}

// MaxRetries returns the per-entry retry cap before dead-letter.
// Defaults to 3.
func MaxRetries() int {
	n, err := strconv.Atoi(os.Getenv("MAX_RETRIES"))
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// FailureAlertThreshold returns the batch failure rate that fires an alert.
// Defaults to 0.5.
func FailureAlertThreshold() float64 {
	f, err := strconv.ParseFloat(os.Getenv("FAILURE_ALERT_THRESHOLD"), 64)
	if err != nil || f <= 0 || f > 1 {
		return 0.5
	}
	return f
}

// SweepInterval returns how often the scheduler re-enqueues stale pending
// and retryable failed entries. Defaults to 1m.
func SweepInterval() time.Duration {
	secs, err := strconv.Atoi(os.Getenv("SWEEP_INTERVAL_SECONDS"))
	if err != nil || secs <= 0 {
		return time.Minute
	}
	return time.Duration(secs) * time.Second
}

// MartingaleWindowDays returns the rolling calibration window.
// Defaults to 7.
func MartingaleWindowDays() int {
	n, err := strconv.Atoi(os.Getenv("MARTINGALE_WINDOW_DAYS"))
	if err != nil || n <= 0 {
		return 7
	}
	return n
}

// ToolManifestPath returns the static tool manifest location.
func ToolManifestPath() string {
	p := os.Getenv("TOOL_MANIFEST_PATH")
	if p == "" {
		return "tools.json"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
