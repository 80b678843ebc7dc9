package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	wsHandler "commhub-backend/internal/handler/ws"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/repository/redis"
	"commhub-backend/internal/signaling"
	"commhub-backend/pkg/config"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/database"
	"commhub-backend/pkg/jwt"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

const serviceName = "signaling-service"

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
		Service:  serviceName,
	}); err != nil {
		logger.InitDefault()
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry)

	// 1. Connect to Redis; Pub/Sub fans frames out across relay instances
	redisDB, err := database.NewRedisDB(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis")

	appMetrics := metrics.NewMetrics(serviceName)

	// 2. Relay hub
	broker := signaling.NewRedisProvider(redisDB.Client)
	hub := wsHandler.NewSignalingHub(broker, cfg.Call.MaxConnections, cfg.Server.AllowedOrigins, appMetrics)
	revocationChecker := middleware.NewRedisRevocationChecker(redis.NewSessionRepository(redisDB.Client))

	// 3. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthCheck(serviceName, map[string]middleware.HealthCheckFunc{
		"redis": redisDB.Ping,
	}))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	v1 := router.Group("/v1/signaling")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		v1.GET("/ws", hub.ServeWS)
	}

	// 4. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Signaling service starting",
			zap.Int("port", cfg.Server.Port),
			zap.Int("max_connections", cfg.Call.MaxConnections))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
