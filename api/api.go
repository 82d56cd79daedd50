// Package api exposes the local status surface of a running overlay
// daemon: liveness, the current session verdict, watcher counters and
// the recent check history.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marchfour/regionlens/history"
	"github.com/marchfour/regionlens/overlay"
)

// Server serves the read-only status API on a local listener.
type Server struct {
	coord  *overlay.Coordinator
	store  *history.Store // nil when history is disabled
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds the router. store may be nil.
func NewServer(addr string, coord *overlay.Coordinator, store *history.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{coord: coord, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)
	r.Post("/recheck", s.handleRecheck)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.ListenAndServe() }()
	s.logger.Info("api: listening", "addr", s.srv.Addr)

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	identity, result := s.coord.Session().Get()
	writeJSON(w, 200, map[string]any{
		"identity": identity,
		"result":   result,
		"watcher":  s.coord.WatcherStats(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, 200, []history.Entry{})
		return
	}
	limit := queryInt(r, "limit", history.Cap)
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, 200, entries)
}

func (s *Server) handleRecheck(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Recheck(r.Context()); err != nil {
		writeError(w, 502, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
