package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/taarskog/somweb-bridge/internal/entry"
	"github.com/taarskog/somweb-bridge/internal/hub"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/config"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Config  *config.Config
	Logger  *logging.Logger
	Hub     *hub.Hub
	Repo    *entry.Repository
	Version string

	// Validator builds device sessions for config validation. Defaults
	// to real HTTP sessions; replaced in tests.
	Validator entry.ClientFactory
}

// Server is the HTTP API server for the bridge: config entry management,
// door reads and actions, and the WebSocket state stream.
type Server struct {
	cfg       *config.Config
	log       *logging.Logger
	hub       *hub.Hub
	repo      *entry.Repository
	version   string
	validator entry.ClientFactory

	httpServer *http.Server
	wsHub      *WSHub
	startedAt  time.Time
}

// New creates an API server. It validates dependencies but does not
// start listening.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("api: config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("api: logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("api: hub is required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("api: entry repository is required")
	}

	s := &Server{
		cfg:       deps.Config,
		log:       deps.Logger.With("component", "api"),
		hub:       deps.Hub,
		repo:      deps.Repo,
		version:   deps.Version,
		validator: deps.Validator,
	}
	if s.validator == nil {
		s.validator = s.defaultValidator
	}

	s.wsHub = NewWSHub(s.log, s.cfg.WebSocket)
	deps.Hub.OnSnapshot(s.wsHub.BroadcastSnapshot)

	return s, nil
}

// Start begins serving HTTP in the background.
func (s *Server) Start(ctx context.Context) error {
	router := s.buildRouter()

	addr := fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.cfg.GetReadTimeout(),
		WriteTimeout: s.cfg.GetWriteTimeout(),
		IdleTimeout:  s.cfg.GetIdleTimeout(),
	}

	s.startedAt = time.Now()
	go s.wsHub.Run(ctx)

	go func() {
		s.log.Info("api server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server failed", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.wsHub.CloseAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	s.log.Info("api server stopped")
	return nil
}

// defaultValidator builds real HTTP device sessions for validation.
func (s *Server) defaultValidator(in entry.Input) somweb.Client {
	timeout := somweb.WithTimeout(s.cfg.RequestTimeout())
	if in.Mode == entry.ModeCloud {
		return somweb.NewCloudClient(in.UDI, in.Username, in.Password, timeout)
	}
	return somweb.NewLocalClient(in.URL, in.Username, in.Password, timeout)
}
