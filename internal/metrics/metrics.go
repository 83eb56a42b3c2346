// Package metrics exposes Prometheus collectors for the crawler and an
// optional debug HTTP listener serving them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics bundles the collectors the crawl engine observes.
type Metrics struct {
	registry *prometheus.Registry

	ItemsNew      prometheus.Counter
	ItemsSkipped  prometheus.Counter
	ItemsFailed   prometheus.Counter
	Pages         prometheus.Counter
	RatingsPages  prometheus.Counter
	FetchDuration *prometheus.HistogramVec
}

// New builds and registers the crawler collectors on a private registry, so
// distinct sessions in tests do not collide on the global one.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		registry.MustRegister(c)
		return c
	}

	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bgg_fetch_duration_seconds",
			Help:    "Latency of page fetches, labeled by operation.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
	registry.MustRegister(fetchDuration)

	return &Metrics{
		registry:      registry,
		ItemsNew:      factory("bgg_items_new_total", "Games fetched and committed this run."),
		ItemsSkipped:  factory("bgg_items_skipped_total", "Games skipped because the loaded index already had them."),
		ItemsFailed:   factory("bgg_items_failed_total", "Games abandoned after exhausting the retry cap."),
		Pages:         factory("bgg_pages_total", "Catalog pages flushed."),
		RatingsPages:  factory("bgg_ratings_pages_total", "Rating feed pages fetched."),
		FetchDuration: fetchDuration,
	}
}

// ObserveFetch records one fetch latency under the given operation label.
func (m *Metrics) ObserveFetch(operation string, d time.Duration) {
	m.FetchDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Server serves /metrics and /healthz on a side listener. It is purely
// observational and off unless an address is configured.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the debug listener for the given collectors.
func NewServer(addr string, m *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start runs the listener in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
