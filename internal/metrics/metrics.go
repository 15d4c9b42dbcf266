// Package metrics exposes Prometheus instrumentation for the verification
// service: decision counters, inference latency, sink errors, and HTTP
// request metrics, plus an optional standalone metrics server.
package metrics

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	Verifications     *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	SinkErrors        *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	ModelAccuracy     prometheus.Gauge
}

// Config holds configuration for the metrics server.
type Config struct {
	Enabled bool
	Addr    string
}

// LoadConfig loads metrics configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Enabled: getBool("METRICS_ENABLED", false),
		Addr:    getOr("METRICS_ADDR", "127.0.0.1:9090"),
	}
}

// NewMetrics creates and registers all collectors on a fresh registry-free
// basis (default registerer).
func NewMetrics() *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passivecaptcha_verifications_total",
				Help: "Total verification decisions by outcome",
			},
			[]string{"decision", "fallback"},
		),

		InferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "passivecaptcha_inference_duration_seconds",
				Help:    "Extract+scale+classify latency per verification",
				Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
			},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passivecaptcha_sink_errors_total",
				Help: "Total errors delivering decisions to a sink",
			},
			[]string{"sink"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passivecaptcha_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passivecaptcha_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"endpoint", "method"},
		),

		ModelAccuracy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passivecaptcha_model_accuracy",
				Help: "Held-out accuracy of the currently loaded model artifact",
			},
		),
	}

	prometheus.MustRegister(m.Verifications)
	prometheus.MustRegister(m.InferenceDuration)
	prometheus.MustRegister(m.SinkErrors)
	prometheus.MustRegister(m.HTTPRequests)
	prometheus.MustRegister(m.HTTPDuration)
	prometheus.MustRegister(m.ModelAccuracy)

	return m
}

// ObserveDecision records one verification outcome.
func (m *Metrics) ObserveDecision(isHuman, fallback bool, inferenceMs float64) {
	if m == nil {
		return
	}
	decision := "bot"
	if isHuman {
		decision = "human"
	}
	fb := "false"
	if fallback {
		fb = "true"
	}
	m.Verifications.WithLabelValues(decision, fb).Inc()
	m.InferenceDuration.Observe(inferenceMs / 1000)
}

// Server serves /metrics on its own listener, away from the public API.
type Server struct {
	server *http.Server
	config Config
}

// NewServer creates a metrics server for the given config.
func NewServer(config Config) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: config.Addr, Handler: mux},
		config: config,
	}
}

// Start runs the metrics server in the background if enabled.
func (s *Server) Start() {
	if !s.config.Enabled {
		return
	}
	go func() {
		log.Printf("metrics server listening on %s", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

// Shutdown stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
