package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"ontohub/internal/api"
	"ontohub/internal/api/handlers"
	"ontohub/internal/api/middleware"
	"ontohub/internal/engine/events"
	"ontohub/internal/engine/ontology"
	"ontohub/internal/engine/webhooks"
	"ontohub/internal/pkg/logger"
	"ontohub/internal/platform/audit"
	"ontohub/internal/platform/auth"
	"ontohub/internal/platform/config"
	"ontohub/internal/platform/database"
	"ontohub/internal/platform/models"
	"ontohub/internal/platform/monitoring"
	"ontohub/internal/platform/repositories"
	"ontohub/internal/workers"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func configPath() string {
	if path := os.Getenv("ONTOHUB_CONFIG"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Repositories
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	packageRepo := repositories.NewPackageRepository(db)

	// Local events
	dispatcher := events.NewDispatcher()
	dispatcher.Subscribe(models.EventOntologyActivated, func(p events.Payload) error {
		log.Info().Interface("code", p["code"]).Interface("version", p["version"]).Msg("Ontology activated")
		return nil
	}, "")

	// Delivery
	pool := workers.NewPool(cfg.Webhooks.WorkerCount, cfg.Webhooks.QueueSize)
	pool.Start()

	metrics := monitoring.New()
	metrics.RegisterPool(pool)

	engine := webhooks.NewEngine(deliveryRepo, webhooks.OptionsFromConfig(cfg.Webhooks))
	engine.Recorder = metrics
	broadcaster := webhooks.NewBroadcaster(webhookRepo, engine, pool)
	analyzer := webhooks.NewAnalyzer(webhookRepo, deliveryRepo)

	// Services
	packageSvc := ontology.NewService(packageRepo, deliveryRepo, analyzer, broadcaster, dispatcher, cfg.Storage.Dir)
	tokenSvc := auth.NewTokenService(cfg.JWT)
	if !tokenSvc.Enabled() {
		log.Warn().Msg("jwt.secret is empty, the API is running without authentication")
	}
	auditLogger := audit.NewLogger()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer rateLimiter.Stop()

	// Router
	deps := &api.Dependencies{
		WebhookHandler:  handlers.NewWebhookHandler(webhookRepo, deliveryRepo, broadcaster, analyzer, packageSvc, auditLogger),
		OntologyHandler: handlers.NewOntologyHandler(packageSvc, analyzer, auditLogger),
		HealthHandler:   handlers.NewHealthHandler(db, pool),
		MetricsHandler:  handlers.NewMetricsHandler(metrics),
		AuthMiddleware:  middleware.NewAuthMiddleware(tokenSvc),
		RateLimiter:     rateLimiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting pushes before draining queued deliveries.
		serverErr := srv.Shutdown(shutdownCtx)
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Delivery queue not fully drained")
		}
		return serverErr
	})

	return group.Wait()
}
