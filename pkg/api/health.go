package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/mcci/pkg/metrics"
	"github.com/cuemby/mcci/pkg/server"
)

// StatsSource provides the router snapshot served on /stats.
type StatsSource interface {
	Stats() server.Stats
}

// HealthServer serves /metrics, /health, /ready, /live and /stats over HTTP.
type HealthServer struct {
	source StatsSource
	mux    *http.ServeMux
	server *http.Server
}

// NewHealthServer creates a new health check HTTP server
func NewHealthServer(source StatsSource) *HealthServer {
	hs := &HealthServer{
		source: source,
		mux:    metrics.Mux(),
	}
	hs.mux.HandleFunc("/stats", hs.statsHandler)
	hs.server = &http.Server{
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return hs
}

// Start listens on addr and serves until Shutdown.
func (hs *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return hs.Serve(lis)
}

// Serve accepts connections on lis until Shutdown.
func (hs *HealthServer) Serve(lis net.Listener) error {
	if err := hs.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func (hs *HealthServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(hs.source.Stats())
}
