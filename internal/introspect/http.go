package introspect

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/gowe/internal/scheduler"
)

// Server exposes a minimal debug HTTP surface over a running Scheduler,
// the spec §4.D draw_debug() panel translated into a small JSON API plus
// its persisted history. Grounded on the teacher's chi.Router-based
// internal/server, trimmed to the two routes this domain actually needs.
type Server struct {
	router  chi.Router
	sched   *scheduler.Scheduler
	history *HistoryStore
	logger  *slog.Logger
}

// New builds a Server. history may be nil if rebuild history isn't being
// recorded, in which case GET /debug/history always returns an empty list.
func New(sched *scheduler.Scheduler, history *HistoryStore, logger *slog.Logger) *Server {
	s := &Server{
		sched:   sched,
		history: history,
		logger:  logger.With("component", "introspect-http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/debug", s.handleDebug)
	r.Get("/debug/history", s.handleHistory)
	r.Get("/healthz", s.handleHealthz)
	s.router = r
	return s
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	snap := s.sched.DrawDebug()
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(RenderText(time.Now(), snap)))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []Entry{})
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
