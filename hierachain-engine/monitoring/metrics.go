package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Metrics holds all Prometheus metrics for the executor.
type Metrics struct {
	// Block metrics
	BlocksTotal  *prometheus.CounterVec
	BlockLatency prometheus.Histogram
	BlockSize    prometheus.Histogram

	// Transaction metrics
	TransactionsTotal *prometheus.CounterVec

	// Scheduler metrics
	Executions       prometheus.Counter
	Validations      prometheus.Counter
	ValidationAborts prometheus.Counter
	Dependencies     prometheus.Counter
	Incarnations     prometheus.Histogram
	Workers          prometheus.Gauge

	// Fallback metrics
	FallbacksTotal *prometheus.CounterVec

	// Endpoint metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var _ core.MetricsSink = (*Metrics)(nil)

// NewMetrics creates metrics registered on reg under namespace. Passing a
// fresh registry keeps tests and multiple executors independent.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BlocksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Total number of executed blocks by mode",
		}, []string{"mode"}),
		BlockLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_latency_seconds",
			Help:      "Block execution latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		BlockSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_size",
			Help:      "Number of transactions per block",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),

		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of committed transactions by status",
		}, []string{"status"}),

		Executions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of transaction incarnations executed",
		}),
		Validations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of read-set validations",
		}),
		ValidationAborts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_aborts_total",
			Help:      "Total number of incarnations aborted by validation",
		}),
		Dependencies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependencies_total",
			Help:      "Total number of executions suspended on an estimate",
		}),
		Incarnations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "incarnations_per_transaction",
			Help:      "Executions per transaction in a block",
			Buckets:   []float64{1, 1.1, 1.25, 1.5, 2, 3, 5, 10},
		}),
		Workers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Number of workers used by the last block",
		}),

		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of parallel runs abandoned by reason",
		}, []string{"reason"}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total endpoint requests by transport and status",
		}, []string{"transport", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Endpoint request duration by transport",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
	}
}

// ObserveBlock implements core.MetricsSink.
func (m *Metrics) ObserveBlock(out *core.BlockOutput, elapsed time.Duration) {
	m.BlocksTotal.WithLabelValues(out.Mode.String()).Inc()
	m.BlockLatency.Observe(elapsed.Seconds())
	m.BlockSize.Observe(float64(len(out.Results)))

	for i := range out.Results {
		st := out.Results[i].Status
		label := st.Kind.String()
		if st.Kind == types.StatusKeep && st.Failure != "" {
			label = "failed"
		}
		m.TransactionsTotal.WithLabelValues(label).Inc()
	}

	s := out.Stats
	m.Executions.Add(float64(s.Executions))
	m.Validations.Add(float64(s.Validations))
	m.ValidationAborts.Add(float64(s.ValidationAborts))
	m.Dependencies.Add(float64(s.Dependencies))
	m.Workers.Set(float64(s.Workers))
	if n := len(out.Results); n > 0 {
		m.Incarnations.Observe(float64(s.Executions) / float64(n))
	}
}

// RecordFallback implements core.MetricsSink.
func (m *Metrics) RecordFallback(reason core.FallbackReason) {
	m.FallbacksTotal.WithLabelValues(reason.String()).Inc()
}

// RecordRequest records an endpoint request.
func (m *Metrics) RecordRequest(transport, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(transport, status).Inc()
	m.RequestDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

// MetricsServer runs an HTTP server exposing the /metrics endpoint.
type MetricsServer struct {
	server *http.Server
	logger zerolog.Logger
}

// NewMetricsServer creates a metrics server on addr serving gatherer.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) *MetricsServer {
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("module", "metrics").Logger(),
	}
}

// Handler returns the metrics and health mux.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("metrics server listening")
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
