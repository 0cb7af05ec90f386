package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/tasktracker/api/handler"
	"github.com/fastygo/tasktracker/internal/config"
	"github.com/fastygo/tasktracker/internal/infrastructure/buffer"
	"github.com/fastygo/tasktracker/internal/infrastructure/monitor"
	natsInfra "github.com/fastygo/tasktracker/internal/infrastructure/nats"
	pgInfra "github.com/fastygo/tasktracker/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/tasktracker/internal/infrastructure/redis"
	"github.com/fastygo/tasktracker/internal/middleware"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/internal/router"
	"github.com/fastygo/tasktracker/internal/services"
	"github.com/fastygo/tasktracker/internal/services/lifecycle"
	"github.com/fastygo/tasktracker/pkg/httpcontext"
	"github.com/fastygo/tasktracker/pkg/logger"
	"github.com/fastygo/tasktracker/repository/postgres"
	redisRepo "github.com/fastygo/tasktracker/repository/redis"
	"github.com/fastygo/tasktracker/usecase"
	authUC "github.com/fastygo/tasktracker/usecase/auth"
	profileUC "github.com/fastygo/tasktracker/usecase/profile"
	taskUC "github.com/fastygo/tasktracker/usecase/task"
)

const monitorInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(appCtx, cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	natsClient, err := natsInfra.Connect(appCtx, cfg.NATS, zapLogger)
	if err != nil {
		zapLogger.Fatal("nats connection failed", zap.Error(err))
	}
	manager.Register("nats", func(ctx context.Context) error {
		return natsClient.Close()
	})

	outboxStore, err := buffer.Open(cfg.Outbox.Path, "outbox", 0)
	if err != nil {
		zapLogger.Fatal("failed to open outbox store", zap.Error(err))
	}
	manager.Register("outbox_store", func(ctx context.Context) error {
		return outboxStore.Close()
	})

	mon := monitor.New(pool, redisClient, natsClient, outboxStore, monitorInterval, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	userRepo := postgres.NewUserRepository(pool)
	taskStore := postgres.NewTaskStore(pool)
	sessionRepo := redisRepo.NewSessionRepository(redisClient, cfg.JWT.TTL)
	taskCache := redisRepo.NewCache(redisClient, cfg.Cache.Prefix)

	recorder := observability.New(observability.Settings{Enabled: cfg.Observability.Enabled}, zapLogger)
	publisher := natsInfra.NewPublisher(natsClient.JetStream(), zapLogger)

	outbox := services.NewOutboxProcessor(
		outboxStore,
		mon,
		publisher,
		recorder,
		zapLogger,
		services.ProcessorConfig{
			Interval:       cfg.Outbox.Interval,
			BatchSize:      cfg.Outbox.BatchSize,
			MaxRetries:     cfg.Outbox.MaxRetry,
			PublishTimeout: cfg.Timeouts.Publish,
			Retention:      time.Duration(cfg.Outbox.RetentionHours) * time.Hour,
		},
	)
	outbox.Start()
	manager.Register("outbox_processor", func(ctx context.Context) error {
		outbox.Stop(ctx)
		return nil
	})

	tokens := authUC.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	authUseCase := authUC.New(userRepo, sessionRepo, tokens, zapLogger)
	profileUseCase := profileUC.New(userRepo, zapLogger)
	taskUseCase := taskUC.New(
		taskStore,
		taskCache,
		publisher,
		recorder,
		zapLogger,
		taskUC.Config{
			Exchange: cfg.NATS.Stream,
			CacheTTL: cfg.Cache.TTL,
			Timeouts: usecase.Timeouts{
				Persistence: cfg.Timeouts.Persistence,
				Cache:       cfg.Timeouts.Cache,
				Publish:     cfg.Timeouts.Publish,
			},
		},
		taskUC.WithOutbox(outbox),
	)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Profile: apiHandler.NewProfileHandler(profileUseCase, ctxAdapter, zapLogger),
		Task:    apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, recorder, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(tokens, authUseCase, cfg.Timeouts.Cache, zapLogger)
	r := router.New(handlers, authMiddleware, router.Options{
		EnableMetrics: cfg.HTTP.EnableMetrics,
		EnablePprof:   cfg.HTTP.EnablePprof,
	})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			zapLogger.Info("server started", zap.String("address", cfg.Address()))
			errCh <- server.ListenAndServe(cfg.Address())
		}()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	if cfg.Consumer.Enabled {
		notifier := services.NewCompletionNotifier(
			userRepo,
			services.LogSender{Logger: zapLogger.Named("notifications")},
			recorder,
			cfg.Notification.From,
			cfg.Notification.Timeout,
			zapLogger,
		)
		consumer := services.NewEventConsumer(notifier, recorder, zapLogger)
		subscription := natsInfra.NewSubscription(natsClient, cfg.Consumer, zapLogger)
		manager.Go("event_consumer", func(ctx context.Context) error {
			return subscription.Subscribe(ctx, cfg.Consumer.Queue, consumer.Handle)
		})
	}

	if err := manager.Wait(); err != nil {
		zapLogger.Error("component stopped unexpectedly", zap.Error(err))
	}
	cancel()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
