// Package metrics exposes Prometheus instruments for the engine and the
// /metrics HTTP endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the engine records.
type Metrics struct {
	SnapshotsReceived *prometheus.CounterVec
	StreamReconnects  prometheus.Counter
	StreamFatals      prometheus.Counter
	ActiveStreams     prometheus.Gauge
	CyclesSimulated   prometheus.Counter
	Opportunities     prometheus.Counter
	Executions        *prometheus.CounterVec
	EngineRestarts    prometheus.Counter
	ScanDuration      prometheus.Histogram
}

// New registers all instruments on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SnapshotsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triarb_snapshots_received_total",
			Help: "Order book snapshots received per symbol.",
		}, []string{"symbol"}),
		StreamReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "triarb_stream_reconnects_total",
			Help: "Stream reconnect attempts.",
		}),
		StreamFatals: factory.NewCounter(prometheus.CounterOpts{
			Name: "triarb_stream_fatals_total",
			Help: "Streams that failed fatally and blacklisted their symbol.",
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "triarb_active_streams",
			Help: "Currently supervised order book streams.",
		}),
		CyclesSimulated: factory.NewCounter(prometheus.CounterOpts{
			Name: "triarb_cycles_simulated_total",
			Help: "Cycle simulations performed.",
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Name: "triarb_opportunities_total",
			Help: "Cycles whose simulated profit exceeded the threshold.",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triarb_executions_total",
			Help: "Cycle executions by result.",
		}, []string{"result"}),
		EngineRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "triarb_engine_restarts_total",
			Help: "Engine loop restarts performed by the supervisor.",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triarb_scan_duration_seconds",
			Help:    "Duration of one full cycle scan.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

// Server serves the Prometheus scrape endpoint.
type Server struct {
	srv *http.Server
}

// NewServer creates a /metrics server on the given port.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		_ = s.srv.ListenAndServe()
	}()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
