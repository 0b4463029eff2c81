package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/switchyard/component"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/plugin"
	"github.com/kbukum/switchyard/provider"
)

const componentName = "admin-server"

var _ component.Component = (*Server)(nil)

// HealthFunc reports the health of the whole service for /healthz.
type HealthFunc func(ctx context.Context) *observability.ServiceHealth

// Option configures a Server.
type Option func(*Server)

// WithHealth sets the /healthz source. Without it /healthz reports the
// admin server alone.
func WithHealth(fn HealthFunc) Option {
	return func(s *Server) { s.health = fn }
}

// Server is the admin HTTP server.
type Server struct {
	cfg      Config
	registry *provider.Registry
	host     *plugin.Host
	health   HealthFunc
	tokens   *TokenService
	engine   *gin.Engine
	handler  http.Handler
	log      *logger.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// New builds the server and its routes. host may be nil, in which case the
// plugin routes answer 503.
func New(cfg Config, registry *provider.Registry, host *plugin.Host, opts ...Option) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		host:     host,
		engine:   gin.New(),
		log:      logger.Get("admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Auth.Enabled() {
		tokens, err := NewTokenService(cfg.Auth)
		if err != nil {
			return nil, err
		}
		s.tokens = tokens
	}

	s.engine.Use(recovery(s.log), requestID(), requestLogger(s.log))
	s.routes()

	s.handler = h2c.NewHandler(s.engine, &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          time.Duration(cfg.IdleTimeout) * time.Second,
	})
	return s, nil
}

// Handler returns the h2c-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Tokens returns the token service, or nil when auth is disabled.
func (s *Server) Tokens() *TokenService { return s.tokens }

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
}

func (s *Server) Name() string { return componentName }

// Start binds the port and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin: bind %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeout) * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()
	s.log.Info("admin server started", logger.Fields(
		"addr", listener.Addr().String(),
		"auth", s.tokens != nil,
	))
	return nil
}

// Stop shuts the server down, waiting at most five seconds for requests
// in flight.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin: shutdown: %w", err)
	}
	s.log.Info("admin server stopped")
	return nil
}

func (s *Server) Health(_ context.Context) observability.Health {
	s.mu.Lock()
	running := s.httpServer != nil
	addr := s.addr
	s.mu.Unlock()
	if !running {
		return observability.Health{Name: componentName, Status: observability.HealthStatusDown, Message: "not started"}
	}
	return observability.Health{
		Name:    componentName,
		Status:  observability.HealthStatusUp,
		Details: map[string]string{"addr": addr},
	}
}
