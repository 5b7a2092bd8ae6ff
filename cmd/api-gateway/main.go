package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academy-pulse-api/api/swagger"
	"github.com/noah-isme/academy-pulse-api/internal/handler"
	"github.com/noah-isme/academy-pulse-api/internal/middleware"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	"github.com/noah-isme/academy-pulse-api/internal/repository"
	"github.com/noah-isme/academy-pulse-api/internal/service"
	"github.com/noah-isme/academy-pulse-api/pkg/cache"
	"github.com/noah-isme/academy-pulse-api/pkg/config"
	"github.com/noah-isme/academy-pulse-api/pkg/database"
	"github.com/noah-isme/academy-pulse-api/pkg/jobs"
	"github.com/noah-isme/academy-pulse-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-pulse-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-pulse-api/pkg/middleware/requestid"
	"github.com/noah-isme/academy-pulse-api/pkg/storage"
)

// @title Academy Pulse API
// @version 0.1.0
// @description Risk scoring, alerting and enrollment funnel analytics
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		cacheService = service.NewCacheService(nil, metricsService, cfg.Risk.CacheTTL, logr, false)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Risk.CacheTTL, logr, true)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	scoreRepo := repository.NewRiskScoreRepository(db)
	alertRepo := repository.NewRiskAlertRepository(db)
	configRepo := repository.NewRiskConfigRepository(db)
	funnelRepo := repository.NewFunnelRepository(db)

	// Services.
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "academy-pulse-api",
	})
	metricService := service.NewMetricService(activityRepo, studentRepo, logr)
	riskService := service.NewRiskService()
	alertService := service.NewAlertService(alertRepo, userRepo, validate, logr)
	configService := service.NewRiskConfigService(configRepo, userRepo, validate, logr)
	funnelService := service.NewFunnelService(funnelRepo, cacheService, cfg.Funnel.CacheTTL, validate, logr)
	riskReadService := service.NewRiskReadService(scoreRepo, alertRepo, studentRepo, cacheService, cfg.Risk.CacheTTL, logr)
	batchService := service.NewBatchService(
		studentRepo, metricService, riskService, scoreRepo,
		alertService, configService, funnelService,
		metricsService, cacheService, logr,
	)

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	riskHandler := handler.NewRiskHandler(riskReadService)
	alertHandler := handler.NewAlertHandler(alertService)
	configHandler := handler.NewRiskConfigHandler(configService)
	funnelHandler := handler.NewFunnelHandler(funnelService)
	batchHandler := handler.NewBatchHandler(batchService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	if cfg.Risk.Enabled {
		risk := protected.Group("/risk")
		risk.GET("/scores", riskHandler.List)
		risk.GET("/students/:id", riskHandler.StudentDetail)
		risk.GET("/config", configHandler.Current)
		risk.GET("/config/:version", configHandler.Version)
		risk.PUT("/config",
			middleware.RequireRoles(models.RoleAdmin),
			configHandler.Update)

		alerts := protected.Group("/alerts")
		alerts.GET("", alertHandler.List)
		alerts.PATCH("/:id/action", alertHandler.Action)
	}

	if cfg.Funnel.Enabled {
		funnel := protected.Group("/funnel")
		funnel.POST("/events", funnelHandler.CreateEvent)
		funnel.GET("/bottlenecks", funnelHandler.Bottlenecks)
		funnel.GET("/transitions", funnelHandler.Transitions)
		funnel.GET("/cohorts", funnelHandler.Cohorts)
	}

	batch := protected.Group("/batch")
	batch.Use(middleware.RequireRoles(models.RoleAdmin))
	batch.Use(middleware.Audit(userRepo, models.AuditActionBatchRun, "batch"))
	batch.POST("/risk-scores", batchHandler.RunRiskScores)
	batch.POST("/funnel-refresh", batchHandler.RunFunnelRefresh)

	system := protected.Group("/system")
	system.Use(middleware.RequireRoles(models.RoleAdmin))
	system.GET("/metrics", metricsHandler.Snapshot)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportService := service.NewExportService(scoreRepo, exportStore, signer, validate, logr)
		exportHandler := handler.NewExportHandler(exportService)

		protected.POST("/exports/risk-roster", exportHandler.Create)
		api.GET("/exports/download", exportHandler.Download)

		go runExportCleanup(rootCtx, exportService, cfg.Exports, logr)
	}

	if cfg.Batch.ScheduleEnabled {
		queue := jobs.NewQueue("batch", func(ctx context.Context, job jobs.Job) error {
			runCtx := ctx
			if cfg.Batch.QueryTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, cfg.Batch.QueryTimeout)
				defer cancel()
			}
			switch job.Type {
			case "risk_scores":
				_, err := batchService.RunRiskBatch(runCtx)
				return err
			case "funnel_refresh":
				_, err := batchService.RunFunnelRefresh(runCtx)
				return err
			default:
				return fmt.Errorf("unknown batch job type %q", job.Type)
			}
		}, jobs.QueueConfig{
			Workers:    1,
			MaxRetries: cfg.Batch.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(rootCtx)
		defer queue.Stop()

		go runBatchSchedule(rootCtx, queue, cfg.Batch.Schedule, logr)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}

// runBatchSchedule enqueues the full batch pipeline on a fixed period.
func runBatchSchedule(ctx context.Context, queue *jobs.Queue, period time.Duration, logr *zap.Logger) {
	if period <= 0 {
		period = 24 * time.Hour
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobType := range []string{"risk_scores", "funnel_refresh"} {
				if err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobType}); err != nil {
					logr.Sugar().Warnw("failed to enqueue scheduled batch", "type", jobType, "error", err)
				}
			}
		}
	}
}

// runExportCleanup purges expired export files on an interval.
func runExportCleanup(ctx context.Context, exports *service.ExportService, cfg config.ExportsConfig, logr *zap.Logger) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exports.Cleanup(cfg.SignedURLTTL)
			logr.Sugar().Debugw("export cleanup pass complete")
		}
	}
}
