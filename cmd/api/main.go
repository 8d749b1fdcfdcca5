package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/contest"
	"github.com/healthy-futures/contest-api/internal/daydef"
	"github.com/healthy-futures/contest-api/internal/handler"
	"github.com/healthy-futures/contest-api/internal/identity"
	"github.com/healthy-futures/contest-api/internal/middleware"
	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/internal/repository"
	"github.com/healthy-futures/contest-api/internal/service"
	"github.com/healthy-futures/contest-api/pkg/cache"
	"github.com/healthy-futures/contest-api/pkg/config"
	"github.com/healthy-futures/contest-api/pkg/database"
	"github.com/healthy-futures/contest-api/pkg/jobs"
	"github.com/healthy-futures/contest-api/pkg/logger"
	corsmiddleware "github.com/healthy-futures/contest-api/pkg/middleware/cors"
	reqidmiddleware "github.com/healthy-futures/contest-api/pkg/middleware/requestid"
	"github.com/healthy-futures/contest-api/pkg/storage"
)

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, reports will not be cached", zap.Error(err))
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}

	validate := validator.New()

	// repositories
	userRepo := repository.NewUserRepository(db)
	entryRepo := repository.NewEntryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	// contest core
	schedule := contest.NewSchedule(cfg.Contest)
	if cfg.Contest.ForceOpen {
		logr.Warn("contest window forced open", contestWindowFields(cfg.Contest)...)
	}
	evaluator := authz.NewEvaluator(userRepo, entryRepo, schedule)
	signer := identity.NewTokenSigner(cfg.Identity.TokenSecret)
	resolver := identity.NewResolver(signer, cfg.Identity.TokenTTL, logr)
	definition := daydef.Default()

	// services
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "contest-api",
	})
	userSvc := service.NewUserService(userRepo, evaluator, resolver, validate, logr)
	calendarSvc := service.NewCalendarService(entryRepo, userRepo, schedule, cfg.Contest, logr)

	urlSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(store, urlSigner, logr)

	var reportSvc *service.ReportService
	queue := jobs.NewQueue("report-export", func(ctx context.Context, job jobs.Job) error {
		return reportSvc.ProcessJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc = service.NewReportService(reportRepo, cacheRepo, evaluator, exportSvc, queue, schedule, cfg.Contest, cfg.Reports.CacheTTL, metricsSvc, logr)
	entrySvc := service.NewEntryService(entryRepo, userRepo, evaluator, schedule, definition, reportSvc, validate, logr)

	// handlers
	secureCookies := cfg.Env == config.EnvProduction
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc, cfg.Identity, secureCookies)
	entryHandler := handler.NewEntryHandler(entrySvc)
	calendarHandler := handler.NewCalendarHandler(calendarSvc)
	reportHandler := handler.NewReportHandler(reportSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("", middleware.JWT(authSvc), middleware.ActiveIdentity(resolver, cfg.Identity, secureCookies))
	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	staff := authed.Group("", middleware.RequireRoles(models.RoleTeacher, models.RoleBoss))
	staff.GET("/users", userHandler.List)
	staff.POST("/users", userHandler.Create)
	staff.DELETE("/users/:id", userHandler.Delete)
	staff.POST("/users/:id/switch", userHandler.Switch)

	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)

	authed.GET("/entries/definition", entryHandler.Definition)
	authed.POST("/entries", middleware.Audit(userRepo, models.AuditActionEntryCreate, "entry"), entryHandler.Create)
	authed.GET("/entries/:id", entryHandler.Get)
	authed.PUT("/entries/:id", middleware.Audit(userRepo, models.AuditActionEntryUpdate, "entry"), entryHandler.Update)
	authed.DELETE("/entries/:id", middleware.Audit(userRepo, models.AuditActionEntryDelete, "entry"), entryHandler.Delete)

	authed.GET("/calendar", calendarHandler.Month)

	staff.GET("/reports/schools", reportHandler.Schools)
	staff.GET("/reports/schools/:school", reportHandler.School)
	staff.POST("/reports/schools/:school/exports", reportHandler.CreateExport)
	staff.GET("/reports/exports/:id", reportHandler.GetExport)
	api.GET("/reports/download", reportHandler.Download)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()

	// jobs queued by a previous run would otherwise wait forever
	if recovered, err := reportSvc.RecoverQueuedJobs(ctx, 100); err != nil {
		logr.Warn("export job recovery failed", zap.Error(err))
	} else if recovered > 0 {
		logr.Info("re-enqueued pending export jobs", zap.Int("count", recovered))
	}

	go func() {
		interval := cfg.Reports.CleanupInterval
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
				exportSvc.Cleanup(cfg.Reports.SignedURLTTL)
			}
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func contestWindowFields(cfg config.ContestConfig) []zap.Field {
	return []zap.Field{zap.Int("year", cfg.Year), zap.Int("month", int(cfg.Month))}
}
