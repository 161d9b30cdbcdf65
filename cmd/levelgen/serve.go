package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lawnchairsociety/levelforge/internal/logger"
	"github.com/lawnchairsociety/levelforge/internal/runstore"
)

const shutdownTimeout = 10 * time.Second

// routes builds the serve-mode handler.
func (a *app) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/regenerate", func(w http.ResponseWriter, r *http.Request) {
		a.handleRegenerate(ctx, w, r)
	})
	mux.HandleFunc("/runs", a.handleRuns)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"seed":        a.gen.CurrentSeed(),
			"busy":        a.guard.Busy(),
			"subscribers": a.hub.Subscribers(),
		})
	})
	return mux
}

// serve runs the HTTP server until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Serve.Addr,
		Handler:           a.routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(a.cfg.Serve.WebSocket.AllowedOrigins) == 0 {
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	} else {
		logger.Info("WebSocket CORS policy", "allowed_origins", a.cfg.Serve.WebSocket.AllowedOrigins)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logger.Info("Level server running", "addr", a.cfg.Serve.Addr)
	logger.Info("Press Ctrl+C to shutdown")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	a.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

type regenerateResponse struct {
	Seed uint32 `json:"seed"`
}

// handleRegenerate starts a generation in the background. Only one run may
// be in flight; a second request gets 409.
func (a *app) handleRegenerate(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Without a seed parameter the generator's current seed is reused.
	var seed uint64
	query := r.URL.Query()
	seedGiven := query.Has("seed")
	if seedGiven {
		var err error
		if seed, err = strconv.ParseUint(query.Get("seed"), 10, 32); err != nil {
			http.Error(w, "invalid seed", http.StatusBadRequest)
			return
		}
	}

	if !a.guard.TryAcquire() {
		http.Error(w, "generation already in progress", http.StatusConflict)
		return
	}
	if seedGiven {
		a.gen.SetSeed(uint32(seed))
	}
	current := a.gen.CurrentSeed()

	go func() {
		defer a.guard.Release()
		if _, _, err := a.runOnce(ctx); err != nil {
			logger.Warning("Regeneration finished with errors", "seed", current, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, regenerateResponse{Seed: current})
}

// handleRuns lists recorded runs, newest first.
func (a *app) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.store == nil {
		http.Error(w, "run store disabled", http.StatusNotFound)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	if v := r.URL.Query().Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		run, err := a.store.GetRun(r.Context(), id)
		if errors.Is(err, runstore.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("Failed to load run", "id", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}

	runs, err := a.store.ListRuns(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []runstore.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}
