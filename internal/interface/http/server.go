// Package http implements the REST API of the hostel registry: issuing and
// parsing identifiers, reading counters, and administrative counter correction.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/hostel-hub/hostel-registry/internal/application/command"
	"github.com/hostel-hub/hostel-registry/internal/application/query"
	"github.com/hostel-hub/hostel-registry/internal/interface/http/handlers"
	"github.com/hostel-hub/hostel-registry/pkg/logger"
)

// Config is the listener and middleware configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes caps request bodies. Identifier requests are a few bytes.
	MaxBodyBytes int64

	// AllowedOrigins for CORS; "*" allows any origin. Empty disables CORS.
	AllowedOrigins []string

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Requests from anyone else are keyed by their
	// socket address.
	TrustedProxies []netip.Prefix

	// RateLimitPerMinute per client IP; 0 disables rate limiting.
	RateLimitPerMinute int

	// AdminKeyHash is the bcrypt hash of the admin key. Empty disables
	// counter administration.
	AdminKeyHash string

	// Version is reported by the root and health endpoints.
	Version string

	// Clock drives the rate limiter windows. Nil means the wall clock.
	Clock clock.Clock
}

// DefaultConfig listens on :8080 with a 100 requests per minute limit.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxBodyBytes:       4 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 100,
		Version:            "v1",
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Dependencies are the application handlers the API calls into.
type Dependencies struct {
	GenerateIdentifierHandler *command.GenerateIdentifierHandler
	SetCounterHandler         *command.SetCounterHandler

	ParseIdentifierHandler *query.ParseIdentifierHandler
	GetCountersHandler     *query.GetCountersHandler

	// ListIssuedHandler is nil when no issue history is stored.
	ListIssuedHandler *query.ListIssuedHandler

	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker
}

// Server is the registry HTTP API.
type Server struct {
	config     Config
	deps       Dependencies
	clock      clock.Clock
	logger     *logger.Logger
	httpServer *http.Server

	limiter   *rateLimiter
	adminAuth *handlers.AdminKeyAuth

	mu        sync.Mutex
	startedAt time.Time
}

// NewServer wires routes and middleware. Call Shutdown to release it, even
// if it was never started.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:    config,
		deps:      deps,
		clock:     config.Clock,
		logger:    deps.Logger,
		adminAuth: handlers.NewAdminKeyAuth(config.AdminKeyHash),
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(s.clock, config.RateLimitPerMinute, time.Minute)
	}

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.wrap(s.routes()),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    16 << 10,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", s.handleLive)

	mux.HandleFunc("POST /api/v1/identifiers", s.handleGenerateIdentifier)
	mux.HandleFunc("GET /api/v1/identifiers", s.handleListIssued)
	mux.HandleFunc("GET /api/v1/identifiers/{id}", s.handleParseIdentifier)

	mux.Handle("GET /api/v1/counters", handlers.NoCacheMiddleware(http.HandlerFunc(s.handleGetCounters)))
	mux.Handle("PUT /api/v1/counters/{block}", s.adminAuth.Middleware(http.HandlerFunc(s.handleSetCounter)))

	return mux
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if !s.startedAt.IsZero() {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.startedAt = s.clock.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.config.Address(), err)
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields at most one error
// and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the rate limiter sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.close()
	}

	// Shutting down a server that never listened is a no-op, and it stops a
	// Start that has not reached ListenAndServe yet from serving at all.
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address()
}

// Handler returns the routed handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return s.clock.Now().Sub(s.startedAt)
}
