// Package http exposes the trials of a running session over HTTP.
//
// The Server is a ports.ReportSink: every published trial becomes the one served by
// /trials/latest and is pushed to /events subscribers. /metrics serves the Prometheus
// registry of the session.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/pidtune/internal/logging"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/trace"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShutdownTimeout bounds the graceful shutdown of Serve.
const ShutdownTimeout = 5 * time.Second

// TrialView is the JSON document of one trial.
type TrialView struct {
	Entry   ports.JournalEntry `json:"entry"`
	Period  time.Duration      `json:"period"`
	Samples []trace.Sample     `json:"samples"`
}

// Server serves the latest trial, the trial journal and the metrics.
type Server struct {
	Streams *StreamManager

	logger   *slog.Logger
	journal  ports.Journal
	gatherer prometheus.Gatherer

	mu     sync.RWMutex
	latest *TrialView
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJournal serves the entries of j on /trials.
func WithJournal(j ports.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithGatherer serves g on /metrics. Defaults to the global Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer creates a Server with no trial yet.
func NewServer(opts ...Option) *Server {
	s := &Server{
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.ReportSink = (*Server)(nil)

// Publish makes report the latest trial and notifies /events subscribers.
func (s *Server) Publish(_ context.Context, report *ports.TrialReport) error {
	view := &TrialView{}
	var acc trace.Accumulator
	if report.Trace != nil {
		view.Period = report.Trace.Period
		view.Samples = make([]trace.Sample, 0, report.Trace.Len)
		for sample := range report.Trace.Samples() {
			acc.Add(sample)
			view.Samples = append(view.Samples, sample)
		}
	}
	view.Entry = report.Entry(acc.Stats())

	s.mu.Lock()
	s.latest = view
	s.mu.Unlock()

	msg, err := json.Marshal(view.Entry)
	if err != nil {
		return fmt.Errorf("failed to encode trial event: %w", err)
	}
	s.Streams.Broadcast(string(msg))
	return nil
}

// Latest returns the last published trial, or nil.
func (s *Server) Latest() *TrialView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.getHealth)
	r.Get("/trials/latest", s.getLatest)
	r.Get("/trials", s.listTrials)
	r.Get("/events", s.subscribeEvents)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		s.Streams.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			return srv.Close()
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		s.logger.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func (s *Server) getLatest(w http.ResponseWriter, _ *http.Request) {
	latest := s.Latest()
	if latest == nil {
		http.Error(w, "no trial yet", http.StatusNotFound)
		return
	}
	writeJSON(w, s.logger, latest)
}

func (s *Server) listTrials(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "no journal configured", http.StatusNotFound)
		return
	}
	entries, err := s.journal.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("journal error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Journal list failed", "err", err)
		return
	}
	if entries == nil {
		entries = []ports.JournalEntry{}
	}
	writeJSON(w, s.logger, entries)
}

// subscribeEvents handles GET /events (SSE): one "trial" event per published trial.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: trial\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}
