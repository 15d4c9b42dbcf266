// Package httpx exposes the verification HTTP API. The core pipeline lives
// in internal/verify; this layer only decodes payloads, applies transport
// policy, and fans decisions out to the audit sinks.
package httpx

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/passivecaptcha/server/internal/metrics"
	"github.com/passivecaptcha/server/internal/sink"
	"github.com/passivecaptcha/server/internal/verify"
	"github.com/passivecaptcha/server/pkg/config"
)

// Env carries the handlers' dependencies.
type Env struct {
	Cfg     config.Config
	Service *verify.Service
	Emit    func(sink.Record) // injected sink fan-out
	Metrics *metrics.Metrics
}

// NewMux builds the public API handler with logging, metrics and CORS
// middleware applied.
func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/verify", e.Verify)
	mux.HandleFunc("/model/reload", e.ModelReload)

	return RequestLogger(MetricsMiddleware(e.Metrics)(cors(mux)))
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s ua=%q dur=%s", r.Method, r.URL.Path, r.UserAgent(), time.Since(start))
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verification is called cross-origin from customer sites.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware records request counts and durations per endpoint.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.HTTPRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.status)).Inc()
			m.HTTPDuration.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
