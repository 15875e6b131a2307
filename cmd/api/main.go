package main

import (
	"context"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/kmun/registration-service/internal/api/http"
	"github.com/kmun/registration-service/internal/api/http/handlers"
	"github.com/kmun/registration-service/internal/auth"
	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/identifier"
	"github.com/kmun/registration-service/internal/notify"
	"github.com/kmun/registration-service/internal/observability"
	"github.com/kmun/registration-service/internal/persistence"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/internal/repository/memory"
	"github.com/kmun/registration-service/internal/service"
	"github.com/kmun/registration-service/internal/storage"
	"github.com/kmun/registration-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	readiness := map[string]handlers.Pinger{}
	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
		readiness["postgres"] = pg
	} else {
		store = memory.New()
		readiness["postgres"] = nil
	}

	var queue notify.Queue
	switch cfg.Notification.QueueBackend {
	case "redis":
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		queue = notify.NewRedisQueue(redis.Client, cfg.Notification.QueueKey)
		readiness["redis"] = redis
	default:
		queue = notify.NewMemoryQueue(0)
		readiness["redis"] = nil
	}

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to init artifact storage", zap.Error(err))
	}
	if closer, ok := artifacts.(io.Closer); ok {
		defer closer.Close() //nolint:errcheck
	}

	metrics := observability.NewMetrics()
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	allocator := identifier.NewAllocator(identifier.Config{
		Prefix:      cfg.Registration.IDPrefix,
		Width:       cfg.Registration.IDWidth,
		MaxAttempts: cfg.Registration.MaxAllocationAttempts,
	}, store.Accounts())

	sealer, err := notify.NewSealer(cfg.Notification.PayloadKey)
	if err != nil {
		logger.Fatal("failed to init notification sealer", zap.Error(err))
	}
	notifications := service.NewNotificationService(cfg.Notification, service.NotificationDependencies{
		Queue:   queue,
		Sender:  notify.NewSender(cfg.Notification, logger),
		Sealer:  sealer,
		Metrics: metrics,
		Logger:  logger,
	})
	registrations := service.NewRegistrationService(cfg.Registration, service.RegistrationDependencies{
		Store:     store,
		Allocator: allocator,
		Hasher:    hasher,
		Artifacts: artifacts,
		Metrics:   metrics,
		Logger:    logger,
	})
	accounts := service.NewAccountService(service.AccountDependencies{
		Store:     store,
		Allocator: allocator,
		Hasher:    hasher,
	})
	authService := service.NewAuthService(service.AuthDependencies{
		Accounts:     store.Accounts(),
		Hasher:       hasher,
		TokenManager: tokens,
	})
	committees := service.NewCommitteeService(store)
	mailer := service.NewMailerService(store, notifications)

	notificationWorker := worker.NewNotificationWorker(cfg.Notification, worker.NotificationWorkerDependencies{
		Queue:     queue,
		Deliverer: notifications,
		Logger:    logger,
		Metrics:   metrics,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := notificationWorker.Run(ctx); err != nil {
			logger.Error("notification worker stopped", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		BodyLimit:             cfg.App.BodyLimitBytes,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Auth:   handlers.NewAuthHandler(authService),
		Registrations: handlers.NewRegistrationsHandler(handlers.RegistrationsHandlerDependencies{
			Registrations:  registrations,
			Notifications:  notifications,
			Artifacts:      artifacts,
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
			Logger:         logger,
		}),
		Users:          handlers.NewUsersHandler(accounts, notifications),
		Committees:     handlers.NewCommitteesHandler(committees),
		Mailer:         handlers.NewMailerHandler(mailer),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Accounts()),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", context.Cause(ctx).Error()))

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	select {
	case <-workerDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("notification worker did not stop in time")
	}
	if q, ok := queue.(*notify.MemoryQueue); ok && q.Len() > 0 {
		logger.Warn("undelivered notifications dropped", zap.Int("count", q.Len()))
	}
}
