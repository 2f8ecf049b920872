// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rankwell/rankwell/internal/addons"
	"github.com/rankwell/rankwell/internal/agency"
	"github.com/rankwell/rankwell/internal/auth"
	"github.com/rankwell/rankwell/internal/billingsync"
	"github.com/rankwell/rankwell/internal/config"
	"github.com/rankwell/rankwell/internal/credits"
	"github.com/rankwell/rankwell/internal/dashboard"
	"github.com/rankwell/rankwell/internal/entitlement"
	"github.com/rankwell/rankwell/internal/health"
	"github.com/rankwell/rankwell/internal/idgen"
	"github.com/rankwell/rankwell/internal/logging"
	"github.com/rankwell/rankwell/internal/metrics"
	"github.com/rankwell/rankwell/internal/ratelimit"
	"github.com/rankwell/rankwell/internal/security"
	"github.com/rankwell/rankwell/internal/tiers"
	"github.com/rankwell/rankwell/internal/traces"
	"github.com/rankwell/rankwell/internal/trialgate"
	"github.com/rankwell/rankwell/internal/usage"
	"github.com/rankwell/rankwell/internal/validation"
	"github.com/rankwell/rankwell/internal/workspace"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	agencies  agency.Store
	workspace workspace.Store
	addOns    addons.Store

	verifier    *auth.Verifier
	clock       *credits.Clock
	builder     *entitlement.Builder
	gate        *trialgate.Gate
	syncer      *billingsync.Syncer
	fetcher     billingsync.SubscriptionFetcher
	health      *health.Registry
	rateLimiter *ratelimit.Limiter

	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSubscriptionFetcher replaces the Stripe API client (for testing)
func WithSubscriptionFetcher(f billingsync.SubscriptionFetcher) Option {
	return func(s *Server) {
		s.fetcher = f
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("credit reset zone: %w", err)
	}

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.agencies = agency.NewPostgresStore(db)
		s.workspace = workspace.NewPostgresStore(db)
		s.addOns = addons.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.agencies = agency.NewMemoryStore()
		s.workspace = workspace.NewMemoryStore()
		s.addOns = addons.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")
	}

	s.verifier = auth.NewVerifier(cfg.JWTSecret)
	s.clock = credits.NewClock(s.agencies, credits.WithLocation(loc))
	s.builder = entitlement.NewBuilder(s.agencies,
		usage.NewAggregator(s.agencies, s.workspace),
		addons.NewReader(s.addOns),
		s.clock,
	)
	s.gate = trialgate.New(s.builder, nil)
	s.syncer = billingsync.NewSyncer(s.agencies, s.addOns, cfg.StripePriceTiers)
	if s.fetcher == nil && cfg.StripeSecretKey != "" {
		s.fetcher = billingsync.NewStripeFetcher(cfg.StripeSecretKey)
	}

	s.health = health.NewRegistry(3 * time.Second)
	if s.db != nil {
		s.health.Register("database", health.Database(s.db))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(traces.Middleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(auth.Middleware(s.verifier))

	rl := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rl)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		if id, ok := auth.GetIdentity(c); ok {
			attrs = append(attrs, "user_id", id.UserID)
		}

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	agencyHandler := agency.NewHandler(s.agencies, workspace.NewProvisioner(s.workspace), callerID)
	entitlementHandler := entitlement.NewHandler(s.builder)
	billingHandler := billingsync.NewHandler(s.syncer, s.fetcher, s.agencies, s.cfg.StripeWebhookSecret)
	dashboardHandler := dashboard.NewHandler(s.workspace, s.agencies, s.builder, s.clock)

	v1 := s.router.Group("/v1")

	// Public
	tiers.RegisterRoutes(v1)
	billingHandler.RegisterWebhookRoutes(v1)

	// Authenticated tenant routes. The trial gate sits in front of all of them
	// and lets only its allowlist through for expired agencies.
	protected := v1.Group("", auth.RequireAuth(), s.rateLimiter.Middleware(), s.gate.Middleware())
	agencyHandler.RegisterRoutes(protected)
	entitlementHandler.RegisterRoutes(protected)
	billingHandler.RegisterRoutes(protected)
	dashboardHandler.RegisterRoutes(protected)

	// Platform admin
	admin := v1.Group("", auth.RequireAdmin(), s.rateLimiter.Middleware())
	agencyHandler.RegisterAdminRoutes(admin)
	dashboardHandler.RegisterAdminRoutes(admin)
}

func callerID(c *gin.Context) (string, bool) {
	id, ok := auth.GetIdentity(c)
	return id.UserID, ok
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	s.health.Handler()(c)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, traces.Options{
		Endpoint:       s.cfg.OTLPEndpoint,
		ServiceVersion: s.cfg.Version,
		SampleRatio:    s.cfg.TraceSampleRatio,
	}, s.logger)
	if err != nil {
		s.logger.Error("tracing init failed, continuing without traces", "error", err)
		shutdownTraces = func(context.Context) error { return nil }
	}
	s.shutdownTraces = shutdownTraces

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
