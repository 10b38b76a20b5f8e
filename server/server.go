// Package server exposes a read-only HTTP view of the bot: liveness, the last
// run per chat and the publication ledger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"auto_wordpress_article_publisher/history"
	"auto_wordpress_article_publisher/pipeline"
	"auto_wordpress_article_publisher/publisher"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// RunSource returns the last run of every chat.
type RunSource interface {
	Runs() map[int64]*pipeline.Run
}

// Ledger lists recorded publications.
type Ledger interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Server struct {
	runs    RunSource
	ledger  Ledger
	logger  *log.Logger
	started time.Time
}

// New builds a server; ledger may be nil when history is disabled.
func New(runs RunSource, ledger Ledger, logger *log.Logger) (*Server, error) {
	if runs == nil {
		return nil, errors.New("run source required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{runs: runs, ledger: ledger, logger: logger, started: time.Now()}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/publications", s.handlePublications)
	return logMiddleware(s.logger, mux)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("status server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Handlers ---

type healthResp struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type runResp struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	Topic       string    `json:"topic"`
	State       string    `json:"state"`
	Title       string    `json:"title,omitempty"`
	Link        string    `json:"link,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

type publicationResp struct {
	RequestID   string    `json:"request_id"`
	ChatID      int64     `json:"chat_id"`
	Topic       string    `json:"topic"`
	Title       string    `json:"title,omitempty"`
	Link        string    `json:"link,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
	State       string    `json:"state"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResp{Status: "ok", Uptime: time.Since(s.started).Round(time.Second).String()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runs.Runs()
	out := make([]runResp, 0, len(runs))
	for chatID, run := range runs {
		rr := runResp{
			ID:     run.ID,
			ChatID: chatID,
			Topic:  run.Request.Topic,
			State:  string(run.State),
		}
		if run.Err != nil {
			rr.Error = run.Err.Error()
		} else {
			rr.Title = publisher.PlainText(run.Article.Title)
			rr.Link = run.Post.Link
			rr.ScheduledAt = run.Slot.At
		}
		out = append(out, rr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	writeJSON(w, out)
}

func (s *Server) handlePublications(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLimit)
	}
	entries, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list publications", "err", err)
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	out := make([]publicationResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, publicationResp(e))
	}
	writeJSON(w, out)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
