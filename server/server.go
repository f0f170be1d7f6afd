// Package server exposes the latest snapshot and the Prometheus metrics over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mklimuk/gasmon/monitor"
	"github.com/mklimuk/gasmon/server/middleware"
)

const shutdownTimeout = 5 * time.Second

// SnapshotReader is satisfied by monitor.Slot.
type SnapshotReader interface {
	Read() monitor.Snapshot
}

// StateReader is satisfied by monitor.Worker.
type StateReader interface {
	State() monitor.State
}

type ServerOpts struct {
	Addr    string
	Slot    SnapshotReader
	Worker  StateReader
	Metrics http.Handler
}

type snapshotResponse struct {
	monitor.Snapshot
	State       string `json:"state,omitempty"`
	Ventilation string `json:"ventilation,omitempty"`
}

// NewRouter registers /ping, /snapshot and, when a metrics handler is given,
// /metrics.
func NewRouter(opts *ServerOpts) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.BasicLogger)
	router.HandleFunc("/ping", ping).Methods(http.MethodGet)
	router.HandleFunc("/snapshot", snapshotHandler(opts)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return router
}

func ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("pong"))
}

func snapshotHandler(opts *ServerOpts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := opts.Slot.Read()
		resp := snapshotResponse{Snapshot: snap}
		if opts.Worker != nil {
			resp.State = opts.Worker.State().String()
		}
		if snap.Success && snap.Ready && !snap.Initializing {
			resp.Ventilation = ventilation(snap).String()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.ErrorContext(r.Context(), "could not encode snapshot", "error", err)
		}
	}
}

func ventilation(s monitor.Snapshot) monitor.Ventilation {
	if s.Variant == monitor.VariantVOC {
		return monitor.Classify(float64(s.ECO2))
	}
	return monitor.Classify(float64(s.CO2))
}

// Run serves until ctx is done, then shuts the server down gracefully.
func Run(ctx context.Context, opts *ServerOpts) error {
	server := &http.Server{
		Addr:         opts.Addr,
		Handler:      NewRouter(opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "status server listening", "addr", opts.Addr)
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("could not shut down status server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
