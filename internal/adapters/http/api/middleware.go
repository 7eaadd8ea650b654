package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/snackboard/pkg/metrics"
)

// errorClass labels a failed response for the error metrics.
type errorClass struct {
	kind     string
	severity string
}

// routeConfig describes how a mounted path reports itself.
type routeConfig struct {
	legacyPath string
}

// RouteOption adjusts the instrumentation of one mounted path.
type RouteOption func(*routeConfig)

// AsLegacyPath marks path as an alias kept for the first web client.
// Requests still report under the canonical endpoint and are also counted
// per alias.
func AsLegacyPath(path string) RouteOption {
	return func(c *routeConfig) {
		c.legacyPath = path
	}
}

// MetricsMiddleware wraps a handler so every request is counted and timed
// under endpoint, and failures are classified per endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string, opts ...RouteOption) http.HandlerFunc {
	var cfg routeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := float64(time.Since(start).Milliseconds())
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, elapsed)
		if cfg.legacyPath != "" {
			metrics.RecordLegacyPathRequest(cfg.legacyPath)
		}

		if rec.status < http.StatusBadRequest {
			return
		}
		class := classify(endpoint, rec.status)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, class.kind)
		metrics.RecordErrorByType(class.kind, class.severity)
		metrics.RecordErrorLatency("http", class.kind, elapsed)
	}
}

// classify names a failed response. Server errors on the data endpoints mean
// the aggregate store could not be read or written.
func classify(endpoint string, status int) errorClass {
	switch {
	case status >= http.StatusInternalServerError && (endpoint == "records" || endpoint == "ranking"):
		return errorClass{kind: "store_unavailable", severity: "high"}
	case status >= http.StatusInternalServerError:
		return errorClass{kind: "server_error", severity: "high"}
	case status == http.StatusMethodNotAllowed:
		return errorClass{kind: "method_not_allowed", severity: "low"}
	case status == http.StatusNotFound:
		return errorClass{kind: "not_found", severity: "low"}
	case status == http.StatusBadRequest && endpoint == "records":
		return errorClass{kind: "invalid_record", severity: "medium"}
	default:
		return errorClass{kind: "client_error", severity: "medium"}
	}
}

// statusRecorder remembers the status code sent through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
