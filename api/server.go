// Package api serves read-only node status and dissemination metrics
// over HTTP. Uses Gorilla Mux for routing with optional CORS support.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("gossip/api")

// StatusSource is the read-only view of the node the API serves.
type StatusSource interface {
	// Status returns general node information.
	Status() map[string]interface{}
	// MetricsSnapshot returns per-component metric snapshots keyed by
	// component name.
	MetricsSnapshot() map[string]map[string]interface{}
}

// Server represents the HTTP API server.
type Server struct {
	source     StatusSource
	router     *mux.Router
	server     *http.Server
	listenAddr string
	enableCORS bool
}

// NewServer creates a new API server.
func NewServer(listenAddr string, enableCORS bool, source StatusSource) *Server {
	s := &Server{
		source:     source,
		listenAddr: listenAddr,
		enableCORS: enableCORS,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.getStatus).Methods("GET")
	api.HandleFunc("/metrics", s.getMetrics).Methods("GET")
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	var handler http.Handler = s.router
	if s.enableCORS {
		handler = cors.New(cors.Options{
			AllowedMethods: []string{"GET"},
		}).Handler(s.router)
	}

	s.server = &http.Server{
		Addr:         s.listenAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Infof("API server listening on %s", s.listenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Status())
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.MetricsSnapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Error writing API response: %v", err)
	}
}
