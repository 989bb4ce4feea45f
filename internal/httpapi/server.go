// Package httpapi exposes a studio.Session over HTTP.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/YuminosukeSato/scigo-studio/internal/config"
	"github.com/YuminosukeSato/scigo-studio/internal/studio"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// Server is the studio HTTP server.
type Server struct {
	server *http.Server
	logger log.Logger
}

// Option configures the handler built by NewHandler.
type Option func(*handlers)

// WithHistory serves GET /history from lister.
func WithHistory(lister HistoryLister) Option {
	return func(h *handlers) { h.history = lister }
}

// WithLogger sets the access and error logger.
func WithLogger(l log.Logger) Option {
	return func(h *handlers) { h.logger = l }
}

// WithMaxUploadBytes bounds the request body of POST /upload.
func WithMaxUploadBytes(n int64) Option {
	return func(h *handlers) { h.maxUpload = n }
}

// NewHandler returns the routed handler wrapped in recovery, access logging
// and CORS.
func NewHandler(session *studio.Session, origins []string, opts ...Option) http.Handler {
	h := &handlers{
		session: session,
		logger:  log.GetLoggerWithName("httpapi"),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	h.register(mux)

	chain := Chain(
		RecoveryMiddleware(h.logger),
		LoggerMiddleware(h.logger),
		CORSMiddleware(corsOrigins(origins)),
	)
	return chain(mux)
}

// NewServer builds a server listening on cfg.Host:cfg.Port.
func NewServer(cfg config.ServerConfig, session *studio.Session, opts ...Option) *Server {
	if cfg.MaxUploadMB > 0 {
		opts = append([]Option{WithMaxUploadBytes(int64(cfg.MaxUploadMB) << 20)}, opts...)
	}
	h := &handlers{logger: log.GetLoggerWithName("httpapi")}
	for _, opt := range opts {
		opt(h)
	}

	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           NewHandler(session, cfg.AllowedOrigins, opts...),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: h.logger,
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Stop drains in-flight requests, waiting at most five seconds.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
