// Package httpapi exposes the public JSON API over gin: quota, generation,
// accounts, pricing, checkout and the Stripe webhook.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/dmitrijs2005/neoma/internal/server/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Quota interface {
	GetAttempts(ctx context.Context, p models.Principal) (*services.Attempts, error)
}

type Generator interface {
	Generate(ctx context.Context, p models.Principal, prompt string) (*services.GenerationResult, error)
}

type Artifacts interface {
	ListAllArtifacts(ctx context.Context, userID, currentVisitorID string) ([]*models.Artifact, error)
}

type Accounts interface {
	Register(ctx context.Context, email, password, visitorID string) (*services.TokenPair, error)
	Login(ctx context.Context, email, password, visitorID string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type Checkout interface {
	Price(req services.PriceRequest) (*services.PriceBreakdown, error)
	CreateSession(ctx context.Context, in services.CheckoutIntent) (*services.CheckoutSession, error)
	Orders(ctx context.Context, userID string) ([]*models.Order, error)
}

type Settlement interface {
	Settle(ctx context.Context, ev *payments.Event) (services.SettlementStatus, error)
}

// Pinger reports whether the store is reachable; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps bundles what the handlers call into.
type Deps struct {
	Quota      Quota
	Generator  Generator
	Artifacts  Artifacts
	Accounts   Accounts
	Checkout   Checkout
	Settlement Settlement
	DB         Pinger
}

type Options struct {
	Addr               string
	JWTSecret          string
	WebhookSecret      string
	CORSOrigins        []string
	RateLimitPerSecond float64
	RateLimitBurst     int
	TrustedProxies     []string
}

type Server struct {
	addr    string
	deps    Deps
	opts    Options
	logger  logging.Logger
	limiter *ipRateLimiter
	engine  *gin.Engine
}

func NewServer(opts Options, deps Deps, l logging.Logger) *Server {
	s := &Server{
		addr:    opts.Addr,
		deps:    deps,
		opts:    opts,
		logger:  l.With("module", "http_server"),
		limiter: newIPRateLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the configured gin engine.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	// gin trusts every proxy unless told otherwise; nil trusts none
	if err := r.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		s.logger.Error(context.Background(), "invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), s.requestMetrics(), s.requestLogger())

	cc := cors.DefaultConfig()
	cc.AllowOrigins = s.opts.CORSOrigins
	cc.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", headerVisitorID}
	cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	if len(cc.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
	}
	r.Use(cors.New(cc))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// the processor retries on its own schedule; never rate limit it
	r.POST("/api/webhooks/stripe", s.stripeWebhook)

	api := r.Group("/api", s.limiter.Middleware(), s.visitorID(), s.authenticate(false))
	api.GET("/attempts", s.attempts)
	api.POST("/generate", s.generate)
	api.POST("/register", s.register)
	api.POST("/login", s.login)
	api.POST("/refresh", s.refresh)
	api.POST("/price", s.price)
	api.POST("/checkout", s.checkout)

	authed := api.Group("", s.requireUser())
	authed.GET("/artifacts", s.artifacts)
	authed.GET("/orders", s.orders)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.StartCleanup(ctx, time.Minute)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.logger.Warn(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
