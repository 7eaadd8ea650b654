// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/snackboard/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RecordsDependencies
	RankingDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	recordsHandler *RecordsHandler
	rankingHandler *RankingHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		recordsHandler: NewRecordsHandler(deps),
		rankingHandler: NewRankingHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/ranking", MetricsMiddleware(s.rankingHandler.HandleGetRanking, "ranking"))
	mux.HandleFunc("/records", MetricsMiddleware(s.recordsHandler.HandleRecords, "records"))

	// Paths used by the first web client.
	mux.HandleFunc("/salgadinhos/ranking", MetricsMiddleware(s.rankingHandler.HandleGetRanking, "ranking",
		AsLegacyPath("/salgadinhos/ranking")))
	mux.HandleFunc("/salgadinhos", MetricsMiddleware(s.recordsHandler.HandleRecords, "records",
		AsLegacyPath("/salgadinhos")))
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a {message} body; server errors also expose the cause.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	if message == "" {
		message = http.StatusText(status)
	}
	body := errorResponse{Message: message}
	if status >= http.StatusInternalServerError && err != nil {
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}

// methodNotAllowed answers 405 and advertises the accepted methods.
func methodNotAllowed(w http.ResponseWriter, op string, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", NewKind(op, ErrMethodNotAllowed))
}

// nonNil keeps empty collections encoding as [] instead of null.
func nonNil(records []types.UserRecord) []types.UserRecord {
	if records == nil {
		return []types.UserRecord{}
	}
	return records
}
