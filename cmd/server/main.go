package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/erp/recurring-billing/internal/application/billing"
	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/infrastructure/cache"
	"github.com/erp/recurring-billing/internal/infrastructure/config"
	"github.com/erp/recurring-billing/internal/infrastructure/event"
	"github.com/erp/recurring-billing/internal/infrastructure/lock"
	"github.com/erp/recurring-billing/internal/infrastructure/logger"
	"github.com/erp/recurring-billing/internal/infrastructure/notification"
	"github.com/erp/recurring-billing/internal/infrastructure/payment"
	"github.com/erp/recurring-billing/internal/infrastructure/persistence"
	"github.com/erp/recurring-billing/internal/infrastructure/queue"
	"github.com/erp/recurring-billing/internal/infrastructure/scheduler"
	"github.com/erp/recurring-billing/internal/infrastructure/strategy"
	"github.com/erp/recurring-billing/internal/infrastructure/telemetry"
	"github.com/erp/recurring-billing/internal/interfaces/http/handler"
	"github.com/erp/recurring-billing/internal/interfaces/http/middleware"
	"github.com/erp/recurring-billing/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting recurring billing",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so the DB plugin and HTTP middleware pick up the globals
	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry, version, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Redis is optional for the memory queue; the rate limiter and
	// dispatch guard degrade without it.
	var redisClient *redis.Client
	if client, err := cache.NewRedisClient(ctx, cfg.Redis); err != nil {
		if cfg.Billing.QueueBackend == config.QueueBackendRedis {
			log.Fatal("Redis is required for the redis queue backend", zap.Error(err))
		}
		log.Warn("Redis unavailable", zap.Error(err))
	} else {
		redisClient = client
		defer func() { _ = redisClient.Close() }()
	}

	dispatched, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Billing.QueueBackend == config.QueueBackendMemory),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create dispatch guard", zap.Error(err))
	}

	taskQueue, locker, queueDepth := buildQueue(cfg.Billing, redisClient)

	gateway, err := buildGateway(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	notifier, closeNotifier, err := buildNotifier(cfg.Kafka, log)
	if err != nil {
		log.Fatal("Failed to initialize notifier", zap.Error(err))
	}
	defer closeNotifier()

	metrics, err := telemetry.NewBillingMetrics(telemetry.BillingMetricsConfig{
		Meter:      providers.Meter(telemetry.MeterName),
		Logger:     log,
		QueueDepth: queueDepth,
	})
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}
	defer func() { _ = metrics.Close() }()

	eventBus := event.NewInMemoryEventBus(log)
	audit := event.NewAuditLogHandler(log)
	eventBus.Subscribe(audit, audit.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Repositories
	scheduleRepo := persistence.NewGormBillingScheduleRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	orderRepo := persistence.NewGormRecurringOrderRepository(db.DB)
	paymentMethodRepo := persistence.NewGormPaymentMethodRepository(db.DB)
	licenseRepo := persistence.NewGormLicenseRepository(db.DB)

	licenseService := appbilling.NewLicenseService(licenseRepo, log)
	strategies, err := strategy.NewRegistryWithDefaults(licenseService)
	if err != nil {
		log.Fatal("Failed to register billing strategies", zap.Error(err))
	}

	manager := appbilling.NewRecurringOrderManager(appbilling.RecurringOrderManagerConfig{
		Subscriptions:  subscriptionRepo,
		Orders:         orderRepo,
		Schedules:      scheduleRepo,
		PaymentMethods: paymentMethodRepo,
		Gateway:        gateway,
		Strategies:     strategies,
		EventPublisher: eventBus,
		Metrics:        metrics,
		Logger:         log,
	})
	dunning := appbilling.NewDunningScheduler(appbilling.DunningSchedulerConfig{
		Manager:        manager,
		Orders:         orderRepo,
		Subscriptions:  subscriptionRepo,
		Schedules:      scheduleRepo,
		Notifier:       notifier,
		EventPublisher: eventBus,
		Metrics:        metrics,
		Logger:         log,
	})
	processor := appbilling.NewTaskProcessor(appbilling.TaskProcessorConfig{
		Queue:                taskQueue,
		Locker:               locker,
		Dunning:              dunning,
		Manager:              manager,
		Orders:               orderRepo,
		LockTTL:              cfg.Billing.LockTTL,
		TransientRetryDelay:  cfg.Billing.TransientRetryDelay,
		MaxTransientAttempts: cfg.Billing.MaxTransientAttempts,
		Metrics:              metrics,
		Logger:               log,
	})
	billingCron := appbilling.NewCron(appbilling.CronConfig{
		Orders:        orderRepo,
		Subscriptions: subscriptionRepo,
		Queue:         taskQueue,
		Dispatched:    dispatched,
		BatchSize:     cfg.Billing.BatchSize,
		DispatchTTL:   cfg.Billing.DispatchTTL,
		Metrics:       metrics,
		Logger:        log,
	})

	scheduleService := appbilling.NewScheduleService(scheduleRepo, strategies, log)
	subscriptionService := appbilling.NewSubscriptionService(appbilling.SubscriptionServiceConfig{
		Subscriptions:  subscriptionRepo,
		Orders:         orderRepo,
		Schedules:      scheduleRepo,
		PaymentMethods: paymentMethodRepo,
		Manager:        manager,
		Strategies:     strategies,
		Logger:         log,
	})
	subscriptionService.SetEventPublisher(eventBus)

	// Background work
	worker, err := scheduler.NewTaskWorker(scheduler.TaskWorkerConfig{
		Workers:      cfg.Billing.WorkerCount,
		PollInterval: cfg.Billing.PollInterval,
		TaskTimeout:  cfg.Billing.TaskTimeout,
	}, taskQueue, processor, log)
	if err != nil {
		log.Fatal("Failed to create task worker", zap.Error(err))
	}
	if err := worker.Start(ctx); err != nil {
		log.Fatal("Failed to start task worker", zap.Error(err))
	}

	var cronJob *scheduler.BillingCron
	if cfg.Billing.CronEnabled {
		cronJob, err = scheduler.NewBillingCron(scheduler.BillingCronConfig{Schedule: cfg.Billing.CronSchedule},
			func(ctx context.Context, now time.Time) error {
				_, err := billingCron.RunCron(ctx, now)
				return err
			}, log)
		if err != nil {
			log.Fatal("Failed to create billing cron", zap.Error(err))
		}
		if err := cronJob.Start(ctx); err != nil {
			log.Fatal("Failed to start billing cron", zap.Error(err))
		}
	}

	// HTTP
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Env:         cfg.App.Env,
		HTTP:        cfg.HTTP,
		Meter:       providers.Meter(telemetry.MeterName),
		Logger:      log,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	var cronMiddleware []gin.HandlerFunc
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
			Limit:  cfg.Billing.CronRunRateLimit,
			Window: cfg.Billing.CronRunRateWindow,
		}, log)
		cronMiddleware = append(cronMiddleware, limiter.Middleware())
	}

	healthChecks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, healthChecks)
	engine.GET("/health", systemHandler.Health)

	router.NewRouter(engine).
		Register(handler.NewScheduleHandler(scheduleService)).
		Register(handler.NewSubscriptionHandler(subscriptionService)).
		Register(handler.NewCronHandler(billingCron, cronMiddleware...)).
		Register(systemHandler).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cronJob != nil {
		if err := cronJob.Stop(shutdownCtx); err != nil {
			log.Warn("Billing cron stop", zap.Error(err))
		}
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Warn("Task worker stop", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus stop", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// buildQueue picks the task queue and order locker for the configured backend.
// The redis backend shares both across instances.
func buildQueue(cfg config.BillingConfig, client *redis.Client) (billing.TaskQueue, billing.OrderLocker, telemetry.QueueDepthFunc) {
	if cfg.QueueBackend == config.QueueBackendRedis {
		q := queue.NewRedisTaskQueue(client, cfg.QueueKeyPrefix, cfg.TaskTimeout)
		return q, lock.NewRedisOrderLocker(client, cfg.QueueKeyPrefix+"lock:"), q.Len
	}
	q := queue.NewMemoryTaskQueue(cfg.TaskTimeout)
	depth := func(context.Context) (int64, error) { return int64(q.Len()), nil }
	return q, lock.NewLocalOrderLocker(), depth
}

func buildGateway(cfg *config.Config, log *zap.Logger) (billing.PaymentGateway, error) {
	if cfg.Billing.Gateway == config.GatewayNone {
		log.Warn("Payment gateway disabled, every charge succeeds")
		return payment.NewNoopGateway(log), nil
	}
	return payment.NewStripeGateway(&payment.StripeConfig{
		SecretKey:         cfg.Stripe.SecretKey,
		BackendURL:        cfg.Stripe.BackendURL,
		Timeout:           cfg.Stripe.Timeout,
		MaxNetworkRetries: 2,
	}, log)
}

// buildNotifier always logs dunning notifications and also publishes them to
// Kafka when enabled.
func buildNotifier(cfg config.KafkaConfig, log *zap.Logger) (billing.Notifier, func(), error) {
	notifiers := []billing.Notifier{notification.NewLogNotifier(log)}
	closeFn := func() {}
	if cfg.Enabled {
		producer, err := notification.NewKafkaProducer(cfg)
		if err != nil {
			return nil, nil, err
		}
		kafka := notification.NewKafkaNotifier(producer, cfg.Topic, log)
		notifiers = append(notifiers, kafka)
		closeFn = func() {
			if err := kafka.Close(); err != nil {
				log.Warn("Kafka notifier close", zap.Error(err))
			}
		}
	}
	return notification.NewMultiNotifier(notifiers...), closeFn, nil
}
