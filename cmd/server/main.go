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

	"safetrails/internal/config"
	"safetrails/internal/handlers"
	"safetrails/internal/middleware"
	"safetrails/internal/repositories/mongodb"
	"safetrails/internal/services"
	"safetrails/pkg/cache"
	"safetrails/pkg/clock"
	"safetrails/pkg/database"
	"safetrails/pkg/logger"
	"safetrails/pkg/sms"
	"safetrails/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Storage
	mongoDB, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongoDB.Close()

	if err := database.NewMigrator(mongoDB.Database).Up(); err != nil {
		appLogger.WithError(err).Fatal("Failed to run migrations")
	}

	// Redis is optional; without it the scheduler falls back to in-process
	// run-locks only.
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
	}

	// Repositories
	tripRepo := mongodb.NewTripRepository(mongoDB.Database)
	locationRepo := mongodb.NewLocationRepository(mongoDB.Database)
	sosRepo := mongodb.NewSOSRepository(mongoDB.Database)
	safetyRepo := mongodb.NewSafetyProfileRepository(mongoDB.Database)
	communityRepo := mongodb.NewCommunityRepository(mongoDB.Database)

	// Services
	clk := clock.New()
	smsProvider := buildSMSProvider(cfg.SMS, appLogger)

	tripService := services.NewTripService(tripRepo, locationRepo, sosRepo, safetyRepo, clk, appLogger)
	tripGuard := services.NewTripGuard(tripService)
	locationService := services.NewLocationService(locationRepo, tripRepo, safetyRepo, clk, appLogger)

	var dispatcher services.ContactDispatcher
	if smsProvider != nil {
		dispatcher = services.NewNotificationService(smsProvider, appLogger)
	}
	sosService := services.NewSOSService(sosRepo, tripRepo, safetyRepo, tripGuard, dispatcher, clk, appLogger)

	var locker services.RunLocker
	if redisCache != nil {
		locker = redisCache
	}
	scheduler := services.NewSchedulerService(
		cfg.Scheduler, tripRepo, locationRepo, sosRepo, safetyRepo, communityRepo,
		sosService, locker, clk, appLogger,
	)

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	if cfg.Scheduler.Enabled {
		scheduler.Start(schedulerCtx)
	}

	// HTTP surface
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())

	tripHandler := handlers.NewTripHandler(tripService, locationService)
	sosHandler := handlers.NewSOSHandler(sosService)
	locationHandler := handlers.NewLocationHandler(locationService)

	v1 := router.Group("/api/v1")
	{
		routes.SetupTripRoutes(v1, cfg.Security.JWTSecret, tripHandler, locationHandler)
		routes.SetupSOSRoutes(v1, cfg.Security.JWTSecret, sosHandler)
	}

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		health := gin.H{
			"status":  "healthy",
			"version": cfg.App.Version,
		}
		if err := mongoDB.Ping(); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "unhealthy"
			health["mongodb"] = err.Error()
		}
		c.JSON(status, health)
	})
	router.GET("/health/schedulers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"enabled": cfg.Scheduler.Enabled,
			"jobs":    scheduler.Health(),
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	if cfg.Scheduler.Enabled {
		cancelScheduler()
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
}

// buildSMSProvider picks the configured contact dispatch transport. With no
// provider configured, dispatch is disabled and tickets still record normally.
func buildSMSProvider(cfg *config.SMSConfig, log *logger.Logger) sms.SMSProvider {
	switch cfg.Provider {
	case "twilio":
		return sms.NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	case "aws_sns":
		provider, err := sms.NewAWSSNSProvider(cfg.AWSRegion)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize SNS provider, contact dispatch disabled")
			return nil
		}
		return provider
	default:
		log.Info("No SMS provider configured, contact dispatch disabled")
		return nil
	}
}
