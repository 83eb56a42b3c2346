// Package timing provides the scoped start/end duration reporter wrapped
// around long crawl operations. It is an observability side channel only.
package timing

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiaz/bgg-crawler/internal/clock/system"
	"github.com/pdiaz/bgg-crawler/internal/metrics"
)

// Clock abstracts time.Now so span durations are testable.
type Clock interface {
	Now() time.Time
}

// Reporter measures labeled spans. Labels are reusable across iterations:
// End clears the mark it matched.
type Reporter struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   Clock

	mu    sync.Mutex
	marks map[string]time.Time
}

// New builds a Reporter using the system clock. mx may be nil.
func New(logger *zap.Logger, mx *metrics.Metrics) *Reporter {
	return NewWithClock(logger, mx, system.New())
}

// NewWithClock builds a Reporter on an explicit clock.
func NewWithClock(logger *zap.Logger, mx *metrics.Metrics, clock Clock) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Reporter{
		logger:  logger,
		metrics: mx,
		clock:   clock,
		marks:   make(map[string]time.Time),
	}
}

// Start records the beginning of a labeled span.
func (r *Reporter) Start(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks[label] = r.clock.Now()
}

// End emits the elapsed duration since the matching Start and clears the
// mark. An End without a Start is ignored.
func (r *Reporter) End(label string) {
	r.mu.Lock()
	start, ok := r.marks[label]
	if ok {
		delete(r.marks, label)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	elapsed := r.clock.Now().Sub(start)
	r.logger.Info("timing",
		zap.String("label", label),
		zap.Duration("dur", elapsed),
	)
	if r.metrics != nil {
		r.metrics.ObserveFetch(label, elapsed)
	}
}
