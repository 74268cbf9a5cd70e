package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-billing-api/api/swagger"
	"github.com/noah-isme/course-billing-api/internal/handler"
	"github.com/noah-isme/course-billing-api/internal/integration/stripe"
	"github.com/noah-isme/course-billing-api/internal/middleware"
	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/repository"
	"github.com/noah-isme/course-billing-api/internal/service"
	"github.com/noah-isme/course-billing-api/pkg/cache"
	"github.com/noah-isme/course-billing-api/pkg/config"
	"github.com/noah-isme/course-billing-api/pkg/database"
	"github.com/noah-isme/course-billing-api/pkg/jobs"
	"github.com/noah-isme/course-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-billing-api/pkg/middleware/requestid"
)

// @title Course Billing API
// @version 1.0.0
// @description Subscription lifecycle and billing reconciliation for course enrollments
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, subscription cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.SubscriptionCache.TTL, logr, cacheRepo != nil)

	notificationQueue := service.NewNotificationQueue(service.LogSink(logr), metricsSvc, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()
	notifier := service.NewNotificationService(notificationQueue, metricsSvc, logr)

	stripeAdapter, err := stripe.NewAdapter(stripe.Config{SecretKey: cfg.Stripe.SecretKey}, logr)
	if err != nil {
		logr.Fatal("failed to init payment provider", zap.Error(err))
	}
	provider := service.NewInstrumentedProvider(stripeAdapter, metricsSvc, logr)

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	payerRepo := repository.NewPayerRepository(db)
	feeRepo := repository.NewCourseFeeRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	opts := []service.LifecycleOption{
		service.WithBillingPolicy(service.BillingPolicy{
			ChargeTimeOfDay:        cfg.Billing.ChargeTimeOfDay,
			CutoffTimeOfDay:        cfg.Billing.CutoffTimeOfDay,
			MaxFee:                 decimal.NewFromFloat(cfg.Billing.MaxFee),
			HorizonExtensionMonths: cfg.Billing.HorizonExtensionMonths,
			MaxPeriods:             cfg.Billing.MaxPeriods,
			DefaultCurrency:        cfg.Stripe.Currency,
			DefaultTimezone:        cfg.Billing.DefaultTimezone,
		}),
		service.WithMetrics(metricsSvc),
		service.WithNotifier(notifier),
		service.WithSubscriptionCache(cacheSvc),
	}

	subscriptionSvc := service.NewSubscriptionService(enrollmentRepo, payerRepo, feeRepo, provider, auditRepo, logr, opts...)
	scheduleSvc := service.NewScheduleService(enrollmentRepo, feeRepo, provider, auditRepo, logr, opts...)
	paymentModeSvc := service.NewPaymentModeService(enrollmentRepo, payerRepo, provider, auditRepo, logr, opts...)
	reportSvc := service.NewBillingReportService(enrollmentRepo, orderRepo, feeRepo, logr, opts...)
	manualSvc := service.NewManualPaymentService(enrollmentRepo, orderRepo, reportSvc, auditRepo, logr, opts...)
	syncSvc := service.NewSubscriptionSyncService(enrollmentRepo, enrollmentRepo, provider, auditRepo, logr, opts...)
	tokens := service.NewTokenValidator(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc, syncSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	paymentModeHandler := handler.NewPaymentModeHandler(paymentModeSvc)
	manualOrderHandler := handler.NewManualOrderHandler(manualSvc)
	billingPeriodHandler := handler.NewBillingPeriodHandler(reportSvc)
	webhookHandler := handler.NewWebhookHandler(stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret), syncSvc, logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.Audit())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/webhooks/stripe", webhookHandler.Stripe)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))
	secured.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFinance))

	enrollments := secured.Group("/enrollments/:id")
	enrollments.GET("/billing-periods", billingPeriodHandler.List)
	enrollments.GET("/subscription", subscriptionHandler.Get)
	enrollments.POST("/subscription", subscriptionHandler.Create)
	enrollments.POST("/subscription/confirm", subscriptionHandler.Confirm)
	enrollments.POST("/subscription/cancel", subscriptionHandler.Cancel)
	enrollments.POST("/subscription/undo-cancel", subscriptionHandler.UndoCancel)
	enrollments.POST("/subscription/resume", subscriptionHandler.Resume)
	enrollments.POST("/subscription/recreate", subscriptionHandler.Recreate)
	enrollments.POST("/subscription/sync", subscriptionHandler.Sync)
	enrollments.PUT("/schedule", scheduleHandler.Update)
	enrollments.POST("/payment-mode/automatic", paymentModeHandler.Automatic)
	enrollments.POST("/payment-mode/manual", paymentModeHandler.Manual)
	enrollments.POST("/manual-orders", manualOrderHandler.Generate)

	orders := secured.Group("/orders/:id")
	orders.POST("/approve", manualOrderHandler.Approve)
	orders.POST("/reject", manualOrderHandler.Reject)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
