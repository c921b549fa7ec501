package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/community-service/internal/api/http"
	"github.com/spec-kit/community-service/internal/api/http/handlers"
	"github.com/spec-kit/community-service/internal/auth"
	"github.com/spec-kit/community-service/internal/config"
	"github.com/spec-kit/community-service/internal/events"
	"github.com/spec-kit/community-service/internal/observability"
	"github.com/spec-kit/community-service/internal/permission"
	"github.com/spec-kit/community-service/internal/persistence"
	"github.com/spec-kit/community-service/internal/repository"
	"github.com/spec-kit/community-service/internal/service"
	"github.com/spec-kit/community-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	table := permission.DefaultTable()
	if cfg.Auth.PermissionsFile != "" {
		if table, err = permission.LoadTableFile(cfg.Auth.PermissionsFile); err != nil {
			logger.Fatal("failed to load permission table", zap.String("file", cfg.Auth.PermissionsFile), zap.Error(err))
		}
		logger.Info("loaded permission table", zap.String("file", cfg.Auth.PermissionsFile))
	}
	engine := permission.NewEngine(table)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("community")
	}

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	relationRepo := repository.NewRelationRepository(pool)

	tokens := auth.NewTokenService(auth.TokenConfig{
		Issuer:        cfg.Auth.Issuer,
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		AccessTTL:     cfg.Auth.AccessTokenTTL(),
		RefreshTTL:    cfg.Auth.RefreshTokenTTL(),
	}, userRepo, metrics)
	guard := auth.NewGuard(tokens, engine, relationRepo, metrics, logger)
	throttle := auth.NewRedisLoginThrottle(redis.Client, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginLockout())

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:          userRepo,
		PasswordResetRepo: resetRepo,
		Tokens:            tokens,
		Throttle:          throttle,
		Dispatcher:        dispatcher,
		Logger:            logger,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:        handlers.NewAuthHandler(authService, guard, engine),
		Admin:       handlers.NewAdminHandler(authService),
		Guard:       guard,
		Metrics:     metrics,
		MetricsPath: cfg.Metrics.Path,
		RateLimit:   httptransport.RateLimitMiddleware(ctx, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
