// Package server wires configuration, storage, services and transports into
// the running Neoma application and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/neoma/internal/cryptox"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/config"
	"github.com/dmitrijs2005/neoma/internal/server/generator"
	"github.com/dmitrijs2005/neoma/internal/server/httpapi"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/dmitrijs2005/neoma/internal/server/pricing"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/neoma/internal/server/services"
	"github.com/dmitrijs2005/neoma/internal/server/storage"

	gs "github.com/dmitrijs2005/neoma/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.New(os.Stdout, c.LogBackend, c.LogLevel)

	registry, err := pricing.LoadRegistry(c.PricingCatalogFile)
	if err != nil {
		return nil, fmt.Errorf("pricing init error: %w", err)
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	signupKey := cryptox.KeyFromSecret(c.SignupEncryptionKey)
	provider := generator.NewClient(c.GeneratorURL, c.GeneratorAPIKey, c.GeneratorTimeout)
	processor := payments.NewClient(c.StripeSecretKey)

	quota := services.NewQuotaService(db, rm, logger.With("service", "quota"))
	identity := services.NewIdentityService(db, rm, store, logger.With("service", "identity"))
	users := services.NewUserService(db, rm, identity, c, registry.Current().FreeUserAttempts, logger.With("service", "users"))
	generation := services.NewGenerationService(db, rm, quota, provider, store, logger.With("service", "generation"))
	checkout := services.NewCheckoutService(db, rm, registry, processor, signupKey, c.PublicBaseURL, logger.With("service", "checkout"))
	settlement := services.NewSettlementService(db, rm, registry, identity, signupKey, logger.With("service", "settlement"))

	httpServer := httpapi.NewServer(httpapi.Options{
		Addr:               c.HTTPAddr,
		JWTSecret:          c.SecretKey,
		WebhookSecret:      c.StripeWebhookSecret,
		CORSOrigins:        c.CORSOrigins,
		RateLimitPerSecond: c.RateLimitPerSecond,
		RateLimitBurst:     c.RateLimitBurst,
		TrustedProxies:     c.TrustedProxies,
	}, httpapi.Deps{
		Quota:      quota,
		Generator:  generation,
		Artifacts:  identity,
		Accounts:   users,
		Checkout:   checkout,
		Settlement: settlement,
		DB:         db,
	}, logger)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		httpServer: httpServer,
		grpcServer: gs.NewGRPCServer(c.GRPCAddr, logger, db),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.grpcServer)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
