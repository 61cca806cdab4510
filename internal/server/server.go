// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
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

	"github.com/vetexchange/vetex/internal/balances"
	"github.com/vetexchange/vetex/internal/cache"
	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/circuitbreaker"
	"github.com/vetexchange/vetex/internal/config"
	"github.com/vetexchange/vetex/internal/health"
	"github.com/vetexchange/vetex/internal/listing"
	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/orchestrator"
	"github.com/vetexchange/vetex/internal/ratelimit"
	"github.com/vetexchange/vetex/internal/realtime"
	"github.com/vetexchange/vetex/internal/retry"
	"github.com/vetexchange/vetex/internal/security"
	"github.com/vetexchange/vetex/internal/session"
	"github.com/vetexchange/vetex/internal/tokens"
	"github.com/vetexchange/vetex/internal/traces"
	"github.com/vetexchange/vetex/internal/trade"
	"github.com/vetexchange/vetex/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	chain        *chain.Client
	store        cache.Store
	registry     *tokens.Registry
	resolver     *trade.Resolver
	aggregator   *listing.Aggregator
	actions      *orchestrator.Service
	opener       *orchestrator.Opener
	balances     *balances.Service
	sessions     *session.Manager
	realtimeHub  *realtime.Hub
	healthChecks *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc
	shutdownOTel func(context.Context) error

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

// WithChainClient sets a custom chain client (for testing)
func WithChainClient(c *chain.Client) Option {
	return func(s *Server) {
		s.chain = c
	}
}

// WithStore sets a custom cache store (for testing)
func WithStore(store cache.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	reg, err := cfg.Tokens()
	if err != nil {
		return nil, fmt.Errorf("token registry: %w", err)
	}
	s.registry = reg

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	if s.store == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
			if err := db.Ping(); err != nil {
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}
			s.db = db
			s.store = cache.NewPostgresStore(db)
			s.logger.Info("using PostgreSQL listing cache", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.store = cache.NewMemoryStore()
			s.logger.Info("using in-memory listing cache (data will not persist)")
		}
	}

	if s.chain == nil {
		c, err := chain.New(chain.Config{
			RPCURL:       cfg.RPCURL,
			ChainID:      cfg.ChainID,
			Escrow:       cfg.EscrowContract,
			DeployBlock:  cfg.DeployBlock,
			PrivateKey:   cfg.PrivateKey,
			GasMarginPct: int64(cfg.GasMarginPct),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create chain client: %w", err)
		}
		s.chain = c
	}

	s.sessions = session.NewManager()
	s.realtimeHub = realtime.NewHub(s.logger)

	meta := cache.NewMetaAdapter(s.store, cfg.EscrowContract)
	s.resolver = trade.NewResolver(s.chain, meta, s.registry)

	breaker := circuitbreaker.New(5, 30*time.Second)
	s.aggregator = listing.NewAggregator(s.store, s.chain, s.registry, breaker,
		cfg.EscrowContract, cfg.ListLimit, cfg.StatusOverrideLimit)

	s.actions = orchestrator.NewService(s.chain, s.resolver, s.realtimeHub, cfg.ConfirmTimeout)
	s.opener = orchestrator.NewOpener(s.chain, s.store, s.registry, cfg.EscrowContract, s.actions)
	s.balances = balances.NewService(s.chain, s.registry, s.sessions)

	s.healthChecks = health.NewRegistry()
	s.healthChecks.Register("rpc", health.RPC(s.chain, 5*time.Second))
	if s.db != nil {
		s.healthChecks.Register("database", health.Database(s.db))
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

func (s *Server) setupMiddleware() {
	// Recovery with logging
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
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
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

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for trade status streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/v1")
	v1.Use(validation.AddressParamMiddleware())

	// Board and trade reads
	v1.GET("/trades", s.listTrades)
	v1.GET("/trades/:id", s.getTrade)
	v1.GET("/trades/:id/actions", s.getTradeActions)
	v1.GET("/sellers/:address/trades", s.sellerTrades)

	// Session
	v1.POST("/session/connect", s.connectWallet)
	v1.POST("/session/disconnect", s.disconnectWallet)
	v1.GET("/session", s.getSession)
	v1.GET("/session/balances", s.getBalances)

	// Profiles
	v1.GET("/profiles/:address", s.getProfile)
	v1.PUT("/profiles/:address", s.putProfile)

	// Trade lifecycle. These submit transactions, so they only exist
	// when a signing key is configured.
	if s.chain.CanSign() {
		v1.POST("/trades", s.openTrade)
		v1.POST("/trades/:id/accept", s.tradeAction(trade.ActionAccept))
		v1.POST("/trades/:id/pay", s.tradeAction(trade.ActionMarkPaid))
		v1.POST("/trades/:id/release", s.tradeAction(trade.ActionRelease))
		v1.POST("/trades/:id/cancel", s.tradeAction(trade.ActionCancel))
		v1.POST("/trades/:id/dispute", s.tradeAction(trade.ActionDispute))
		v1.POST("/contact", s.registerContact)

		admin := v1.Group("/admin")
		admin.Use(s.adminMiddleware())
		admin.GET("/fees", s.getPendingFees)
		admin.POST("/fees/withdraw", s.withdrawFee)
		admin.POST("/trades/:id/resolve", s.resolveDispute)
	} else {
		s.logger.Info("no signing key configured, write endpoints disabled")
	}
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthChecks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

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
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "vetEX",
		"description": "Token escrow trading for KRW and VND",
		"version":     "0.1.0",
		"chainId":     s.cfg.ChainID,
		"contract":    s.chain.EscrowAddress(),
	})
}

// adminMiddleware guards fee withdrawal and arbitration. The secret
// comes from the environment; in its absence admin routes are closed.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	secret := os.Getenv("ADMIN_SECRET")
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Admin-Secret") != secret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownOTel, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownOTel = shutdownOTel
	}

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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"contract", s.chain.EscrowAddress(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	// Probe the RPC endpoint before reporting ready so a load balancer
	// does not route traffic at a node that cannot reach the chain.
	go func() {
		err := retry.Notify(runCtx, 5, 500*time.Millisecond, func(attempt int, err error) {
			s.logger.Warn("rpc probe failed, retrying", "attempt", attempt, "error", err)
		}, func() error {
			probeCtx, cancel := context.WithTimeout(runCtx, 5*time.Second)
			defer cancel()
			_, err := s.chain.BlockNumber(probeCtx)
			return err
		})
		if err != nil {
			s.logger.Warn("rpc endpoint unreachable at startup", "error", err)
		}
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownOTel != nil {
		if err := s.shutdownOTel(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	s.chain.Close()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
