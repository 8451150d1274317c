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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuskit/scheduler-api/api/swagger"
	"github.com/campuskit/scheduler-api/internal/handler"
	"github.com/campuskit/scheduler-api/internal/middleware"
	"github.com/campuskit/scheduler-api/internal/models"
	"github.com/campuskit/scheduler-api/internal/repository"
	"github.com/campuskit/scheduler-api/internal/service"
	"github.com/campuskit/scheduler-api/pkg/cache"
	"github.com/campuskit/scheduler-api/pkg/clock"
	"github.com/campuskit/scheduler-api/pkg/config"
	"github.com/campuskit/scheduler-api/pkg/database"
	"github.com/campuskit/scheduler-api/pkg/logger"
	corsmiddleware "github.com/campuskit/scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuskit/scheduler-api/pkg/middleware/requestid"
)

// @title CampusKit Scheduler API
// @version 1.0.0
// @description Slot publication and booking engine for faculty office hours
// @BasePath /api/v1
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
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancelMigrate()
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}
	cancelMigrate()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The engine works without redis; listings just go uncached.
		logr.Sugar().Warnw("redis unavailable, continuing without listing cache", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	policy := clock.NewPolicy(clock.Real(), cfg.Scheduling.CancellationWindow)

	userRepo := repository.NewUserRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:          cfg.JWT.Secret,
		Expiry:          cfg.JWT.Expiration,
		DevLoginEnabled: cfg.DevAuth.Enabled && cfg.Env != config.EnvProduction,
	})
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, cacheRepo, cfg.Cache.AvailabilityTTL, logr)
	slotSvc := service.NewSlotService(slotRepo, assignmentRepo, cacheRepo, metricsSvc, policy, validate, logr)
	bookingSvc := service.NewBookingService(bookingRepo, userRepo, cacheRepo, metricsSvc, policy,
		cfg.Scheduling.BookingClaimRetries, cfg.Scheduling.ClaimRetryBackoff, validate, logr)
	eligibilitySvc := service.NewEligibilityService(assignmentRepo, slotRepo, bookingRepo, availabilitySvc,
		userRepo, cacheRepo, cfg.Cache.SlotListTTL, policy, logr)
	exportSvc := service.NewExportService(bookingRepo, policy, logr)

	slotHandler := handler.NewSlotHandler(slotSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	eligibilityHandler := handler.NewEligibilityHandler(eligibilitySvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	authHandler := handler.NewAuthHandler(authSvc)
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
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "database"})
			return
		}
		if err := cacheRepo.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "cache"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	if cfg.DevAuth.Enabled && cfg.Env != config.EnvProduction {
		api.POST("/auth/dev/login", authHandler.DevLogin)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	faculty := authed.Group("/faculty")
	faculty.Use(middleware.RequireRoles(models.RoleFaculty))
	{
		faculty.GET("/slots", slotHandler.List)
		faculty.POST("/slots", slotHandler.Create)
		faculty.POST("/slots/bulk", slotHandler.BulkCreate)
		faculty.DELETE("/slots/today", slotHandler.DeleteToday)
		faculty.DELETE("/slots/:id", slotHandler.Delete)
		faculty.GET("/availability", availabilityHandler.Get)
		faculty.PUT("/availability", availabilityHandler.Set)
		faculty.GET("/bookings", bookingHandler.ListForFaculty)
		faculty.GET("/bookings/export", exportHandler.Bookings)
		faculty.GET("/absent-students", bookingHandler.AbsentStudents)
		faculty.PATCH("/bookings/:id/cancel", bookingHandler.Cancel)
		faculty.PATCH("/bookings/:id/complete", bookingHandler.Complete)
		faculty.PATCH("/bookings/:id/absent", bookingHandler.MarkAbsent)
		faculty.POST("/bookings/:id/allow-rebooking", bookingHandler.AllowRebooking)
	}

	student := authed.Group("/student")
	student.Use(middleware.RequireRoles(models.RoleStudent))
	{
		student.GET("/slots", eligibilityHandler.Slots)
		student.GET("/mentors/status", eligibilityHandler.MentorStatus)
		student.POST("/bookings", bookingHandler.Create)
		student.GET("/bookings", bookingHandler.ListMine)
		student.GET("/bookings/current", bookingHandler.Current)
		student.GET("/blocked-subjects", bookingHandler.BlockedSubjects)
		student.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	}

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Sugar().Warnw("redis close failed", "error", err)
	}
	logr.Info("stopped")
}
