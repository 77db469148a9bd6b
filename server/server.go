package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/api"
	"github.com/claude-watch/relay/config"
	"github.com/claude-watch/relay/kv"
	"github.com/claude-watch/relay/log"
	"github.com/claude-watch/relay/pairing"
	"github.com/claude-watch/relay/push"
	"github.com/claude-watch/relay/queue"
	"github.com/claude-watch/relay/relayhub"
)

// Server owns and coordinates every relay component.
type Server struct {
	cfg *config.Config

	store    *kv.Store
	pairing  *pairing.Registry
	queues   *queue.Queues
	hub      *relayhub.Hub
	push     *push.Dispatcher
	handlers *api.Handlers

	// shutdownCtx is cancelled when the server begins shutting down.
	// Long-running handlers (streaming endpoints) should listen to it.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	router *gin.Engine
	http   *http.Server
}

// New creates a server with every component initialized and wired, ready
// for SetupRoutes and Start.
func New(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	log.Info().Msg("initializing KV fabric")
	store, err := kv.Open(kv.Config{
		Path:       cfg.KVDatabasePath,
		CacheSize:  cfg.KVCacheSize,
		SweepCron:  cfg.KVSweepCron,
		LogQueries: cfg.DBLogQueries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open KV fabric: %w", err)
	}
	s.store = store

	log.Info().Msg("initializing pairing registry")
	s.pairing = pairing.New(store, cfg.PairingCodeLength, cfg.PairingMaxCollision)

	log.Info().Msg("initializing queues")
	s.queues = queue.New(store, cfg.QueueMaxDepth)

	log.Info().Msg("initializing notification hub")
	s.hub = relayhub.New()

	log.Info().Msg("initializing push dispatcher")
	dispatcher, err := push.New(store, s.hub, nil, push.Config{
		SigningKeyPath: cfg.PushSigningKeyPath,
		TokenTTL:       cfg.PushTokenTTL,
		RateLimitPerS:  cfg.PushRateLimitPerSec,
		RateLimitBurst: cfg.PushRateLimitBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize push dispatcher: %w", err)
	}
	s.push = dispatcher

	s.handlers = api.New(s.pairing, s.queues, s.push, s.hub)

	s.setupRouter()
	api.SetupRoutes(s.router, s.handlers)

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupRouter creates and configures the Gin router.
func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger())

	if s.cfg.IsDevelopment() {
		s.router.Use(s.corsMiddleware())
	}
	if !s.cfg.IsDevelopment() {
		s.router.Use(s.securityHeadersMiddleware())
	}

	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/session-progress", // polled frequently; compression overhead isn't worth it
		"/stream",           // hijacked for the WebSocket upgrade; gzip must not wrap it
	})))

	s.router.SetTrustedProxies(nil)

	s.router.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
}

// corsMiddleware handles CORS for development environments.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:12345": true,
			"http://localhost:12346": true,
		}

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// securityHeadersMiddleware adds security headers for production.
func (s *Server) securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	log.Info().
		Str("addr", s.http.Addr).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server and every owned component.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	log.Info().Msg("signaling handlers to stop")
	s.shutdownCancel()

	// Give handlers a moment to process the cancellation and close
	// connections before the HTTP server itself stops accepting.
	time.Sleep(100 * time.Millisecond)

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Error().Err(err).Msg("KV fabric close error")
			return err
		}
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors, for main.go and tests.
func (s *Server) Store() *kv.Store               { return s.store }
func (s *Server) Pairing() *pairing.Registry      { return s.pairing }
func (s *Server) Queues() *queue.Queues           { return s.queues }
func (s *Server) Hub() *relayhub.Hub              { return s.hub }
func (s *Server) Push() *push.Dispatcher          { return s.push }
func (s *Server) Router() *gin.Engine             { return s.router }
func (s *Server) ShutdownContext() context.Context { return s.shutdownCtx }
