package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seracourt/ripple/internal/domain"
	"github.com/seracourt/ripple/internal/metrics"
)

const (
	decisionLogBuffer       = 256
	decisionLogWriteTimeout = 2 * time.Second
)

// DecisionLogger persists gate decisions off the request path. Record never
// blocks: a full buffer rejects the incoming decision and bumps the dropped
// counter. The push-back rate statistic tolerates the gap.
type DecisionLogger struct {
	store     domain.DecisionLogStore
	collector *metrics.Collector
	logger    *zap.Logger

	ch chan domain.VoIDecision
	wg sync.WaitGroup
}

func NewDecisionLogger(store domain.DecisionLogStore, collector *metrics.Collector, logger *zap.Logger) *DecisionLogger {
	return &DecisionLogger{
		store:     store,
		collector: collector,
		logger:    logger,
		ch:        make(chan domain.VoIDecision, decisionLogBuffer),
	}
}

// Start begins draining the buffer into the store.
func (l *DecisionLogger) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for d := range l.ch {
			ctx, cancel := context.WithTimeout(context.Background(), decisionLogWriteTimeout)
			if err := l.store.Create(ctx, &d); err != nil {
				l.logger.Warn("decision log write failed",
					zap.String("tool", d.ToolName),
					zap.Error(err))
			}
			cancel()
		}
	}()
}

// Stop flushes whatever is buffered, then returns.
func (l *DecisionLogger) Stop() {
	close(l.ch)
	l.wg.Wait()
}

// Record hands a decision to the background writer without waiting.
func (l *DecisionLogger) Record(d domain.VoIDecision) {
	select {
	case l.ch <- d:
	default:
		l.collector.DecisionLogDropped.Inc()
		l.logger.Debug("decision log buffer full, dropping",
			zap.String("tool", d.ToolName))
	}
}
