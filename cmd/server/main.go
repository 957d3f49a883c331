package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/keypilot/keypilot-api/internal/activation"
	"github.com/keypilot/keypilot-api/internal/config"
	"github.com/keypilot/keypilot-api/internal/geoip"
	"github.com/keypilot/keypilot-api/internal/handler"
	"github.com/keypilot/keypilot-api/internal/handler/middleware"
	"github.com/keypilot/keypilot-api/internal/ierr"
	"github.com/keypilot/keypilot-api/internal/service"
	"github.com/keypilot/keypilot-api/internal/storage/postgres"
	"github.com/keypilot/keypilot-api/internal/storage/redis"
	"github.com/keypilot/keypilot-api/internal/telemetry"
	"github.com/keypilot/keypilot-api/internal/token"
	"github.com/keypilot/keypilot-api/internal/worker"
	"github.com/keypilot/keypilot-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	appRepo := postgres.NewAppRepository(dbPool, appLogger)
	licenseRepo := postgres.NewLicenseRepository(dbPool, appLogger)
	machineRepo := postgres.NewMachineRepository(dbPool, appLogger)
	trackingRepo := postgres.NewTrackingRepository(dbPool, appLogger)
	apiKeyRepo := postgres.NewAPIKeyRepository(dbPool, appLogger)

	recorder := telemetry.NewQueueRecorder(asynqClient, appLogger)
	engine := activation.NewEngine(licenseRepo, machineRepo, recorder, appLogger)
	issuer := token.NewIssuer(&cfg.Token, appLogger)
	geoClient := geoip.NewClient(&cfg.GeoIP, appLogger)

	appService := service.NewAppService(appRepo, appLogger)
	licenseService := service.NewLicenseService(licenseRepo, appRepo, appLogger)
	reportService := service.NewReportService(trackingRepo, appLogger)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, appLogger)

	healthHandler := handler.NewHealthHandler(dbPool, redisClient, appLogger)
	activateHandler := handler.NewActivateHandler(engine, issuer, appService, geoClient, appLogger)
	appHandler := handler.NewAppHandler(appService, appLogger)
	licenseHandler := handler.NewLicenseHandler(licenseService, appLogger)
	reportHandler := handler.NewReportHandler(reportService, appLogger)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, appLogger)

	apiKeyAuthMiddleware := middleware.APIKeyAuthMiddleware(apiKeyRepo, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-API-Key",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		// Public endpoint used by deployed app installations.
		apiV1.POST("/license/activate", activateHandler.Activate)

		appRoutes := apiV1.Group("/apps")
		appRoutes.Use(apiKeyAuthMiddleware)
		{
			appRoutes.POST("", appHandler.Register)
			appRoutes.GET("", appHandler.List)
		}

		licenseRoutes := apiV1.Group("/licenses")
		licenseRoutes.Use(apiKeyAuthMiddleware)
		{
			licenseRoutes.POST("", licenseHandler.Create)
			licenseRoutes.GET("", licenseHandler.List)
		}

		apiV1.GET("/activations", apiKeyAuthMiddleware, reportHandler.ListActivations)
		apiV1.GET("/failed-attempts", apiKeyAuthMiddleware, reportHandler.ListFailedAttempts)

		apiKeyRoutes := apiV1.Group("/apikeys")
		apiKeyRoutes.Use(apiKeyAuthMiddleware)
		{
			apiKeyRoutes.POST("", apiKeyHandler.Create)
			apiKeyRoutes.GET("", apiKeyHandler.List)
			apiKeyRoutes.DELETE("/:id", apiKeyHandler.Revoke)
		}
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	workerErrs, workerShutdown := worker.RunWorkers(cfg, trackingRepo, appLogger)

	g.Go(func() error {
		select {
		case err := <-workerErrs:
			return err
		case <-groupCtx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
			defer cancel()
			workerShutdown(shutdownCtx)
			return nil
		}
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else if errors.Is(waitErr, http.ErrServerClosed) {
			sugarLogger.Info("Shutdown reason: HTTP server closed normally.")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
