package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/vinli0921/GEO-exploration/internal/api/handlers"
	"github.com/vinli0921/GEO-exploration/internal/api/middleware"
	"github.com/vinli0921/GEO-exploration/internal/api/routes"
	"github.com/vinli0921/GEO-exploration/internal/domain/metrics"
	"github.com/vinli0921/GEO-exploration/internal/domain/session"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/blobstore"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/cache"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/persistence/postgres/connection"
	"github.com/vinli0921/GEO-exploration/internal/infrastructure/persistence/postgres/migrations"
	"github.com/vinli0921/GEO-exploration/pkg/config"
	"github.com/vinli0921/GEO-exploration/pkg/logger"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware logs all incoming HTTP requests
func RequestLoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("Request completed",
			zap.String("path", path),
			zap.String("method", method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("") // Empty string will make it search in default locations
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	log := logger.NewLoggerWithLevel(cfg.Logging.Level)
	defer log.Sync()

	log.Info("Configuration loaded successfully")
	log.Info("Server mode: " + cfg.Server.Mode)

	// Set up Gin
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	gin.DefaultWriter = os.Stdout

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware(log))
	router.Use(middleware.NewMetricsMiddleware().CollectMetrics())
	router.Use(middleware.LimitBodySize(cfg.Server.MaxUploadBytes))
	corsConfig := cors.Config{
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	// Extension uploads arrive from arbitrary page origins.
	if len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Connect to database
	db, err := connection.NewDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if err := migrations.AutoMigrate(db, log.Logger); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Raw payload storage
	blobs, err := blobstore.NewFilesystemStore(cfg.Storage.DataPath)
	if err != nil {
		log.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cache.NewConfigFromEnv(cfg))
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize logrus logger for the metrics service
	metricsLogger := logrus.New()
	metricsLogger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "production" {
		metricsLogger.SetLevel(logrus.InfoLevel)
	} else {
		metricsLogger.SetLevel(logrus.DebugLevel)
	}

	// Initialize repositories
	sessionRepo := session.NewRepository(db.DB)
	metricsRepo := metrics.NewRepository(db.DB)

	// Initialize services
	sessionService := session.NewService(sessionRepo, blobs, log.Logger)
	metricsService := metrics.NewService(metricsRepo, sessionRepo, redisClient, metricsLogger)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService)
	metricsHandler := handlers.NewMetricsHandler(metricsService)

	// Register routes
	routes.NewSessionRoutes(sessionHandler).RegisterRoutes(router)
	log.Info("Registered session routes at /api/sessions")

	routes.NewMetricsRoutes(metricsHandler).RegisterRoutes(router)
	log.Info("Registered metrics routes at /api/metrics")

	// Health check routes
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})
	router.GET("/health/db", func(c *gin.Context) {
		sqlDB, err := db.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"component": "database",
				"error":     err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"component": "database",
		})
	})
	router.GET("/health/cache", func(c *gin.Context) {
		if err := redisClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"component": "cache",
				"error":     err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"component": "cache",
		})
	})
	log.Info("Registered health check routes at /health")

	// Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info(fmt.Sprintf("Server starting on port %d", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Info("Shutting down server...")
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited properly")
}
