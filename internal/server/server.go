// Package server exposes the daemon over HTTP: the control API, a camera
// preview, the WebSocket endpoint browser pages connect to, and a status
// feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/capture"
	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/protocol"
	"github.com/ayusman/camscroll/internal/server/api"
	"github.com/ayusman/camscroll/internal/store"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Routes whose dependencies are nil
// are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Camera    capture.Source
	Commands  msgbus.Sender[protocol.Command]
	Loop      api.LoopStatus
	Panel     StatusPanel
	Pages     *PageHub
	Logger    *zap.Logger
	// Context bounds work that outlives a request, such as a training
	// script started over the API.
	Context context.Context
}

// StatusPanel is the operator panel as seen by the server.
type StatusPanel interface {
	api.TrainingPanel
	Subscribe(fn func(status string)) func()
}

// Server is the HTTP front end.
type Server struct {
	config Config
	logger *zap.Logger
	mux    *http.ServeMux
	start  time.Time
	events *EventsHandler
}

// New creates a server and registers its routes.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Context == nil {
		config.Context = context.Background()
	}

	s := &Server{
		config: config,
		logger: config.Logger.Named("server"),
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Commands != nil {
		s.mux.Handle("/api/commands", api.NewCommandsHandler(s.config.Commands, s.logger))
	}

	var panel api.TrainingPanel
	if s.config.Panel != nil {
		panel = s.config.Panel
		s.mux.Handle("/api/training", api.NewTrainingHandler(s.config.Context, s.config.Panel))
		s.mux.Handle("/api/infer", api.NewInferHandler(s.config.Panel))
	}

	status := api.NewStatusHandler(s.config.Loop, panel)
	s.mux.Handle("/api/status", status)

	s.events = NewEventsHandler(status, s.logger)
	if s.config.Panel != nil {
		s.config.Panel.Subscribe(func(string) { s.events.Publish() })
	}
	s.mux.Handle("/api/events", s.events)

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.Camera != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Camera))
	}

	if s.config.Pages != nil {
		s.mux.Handle("/api/page", s.config.Pages)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Events returns the status feed handler.
func (s *Server) Events() *EventsHandler {
	return s.events
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
