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

	adminHandler "commhub-backend/internal/handler/http/admin"
	authHandler "commhub-backend/internal/handler/http/auth"
	contactHandler "commhub-backend/internal/handler/http/contact"
	directoryHandler "commhub-backend/internal/handler/http/directory"
	leadHandler "commhub-backend/internal/handler/http/lead"
	messageHandler "commhub-backend/internal/handler/http/message"
	wsHandler "commhub-backend/internal/handler/ws"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/repository/cassandra"
	"commhub-backend/internal/repository/cockroach"
	"commhub-backend/internal/repository/redis"
	adminService "commhub-backend/internal/service/admin"
	authService "commhub-backend/internal/service/auth"
	contactService "commhub-backend/internal/service/contact"
	directoryService "commhub-backend/internal/service/directory"
	leadService "commhub-backend/internal/service/lead"
	messageService "commhub-backend/internal/service/message"
	"commhub-backend/internal/signaling"
	"commhub-backend/pkg/audit"
	"commhub-backend/pkg/config"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/database"
	"commhub-backend/pkg/jwt"
	"commhub-backend/pkg/lockout"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
	"commhub-backend/pkg/sms"
)

const serviceName = "messenger-service"

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

	ctx := context.Background()

	// 1. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer cockroachDB.Close()
	if err := cockroach.Migrate(ctx, cockroachDB.Pool); err != nil {
		logger.Fatal("Failed to migrate CockroachDB schema", zap.Error(err))
	}
	logger.Info("Connected to CockroachDB")

	// 2. Connect to Cassandra
	cassandraDB, err := database.NewCassandraDB(cfg.Cassandra)
	if err != nil {
		logger.Fatal("Failed to connect to Cassandra", zap.Error(err))
	}
	defer cassandraDB.Close()
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session)
	if err := messageRepo.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate Cassandra schema", zap.Error(err))
	}
	logger.Info("Connected to Cassandra")

	// 3. Connect to Redis
	redisDB, err := database.NewRedisDB(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis")

	appMetrics := metrics.NewMetrics(serviceName)

	// 4. Repositories
	profileRepo := cockroach.NewProfileRepository(cockroachDB.Pool)
	contactRepo := cockroach.NewContactRepository(cockroachDB.Pool)
	leadRepo := cockroach.NewLeadRepository(cockroachDB.Pool)
	sessionRepo := redis.NewSessionRepository(redisDB.Client)
	presenceRepo := redis.NewPresenceRepository(redisDB.Client)
	directoryRepo := redis.NewDirectoryRepository(redisDB.Client)
	auditLog := audit.NewLogger(redisDB.Client)
	broker := signaling.NewRedisProvider(redisDB.Client)

	// 5. Services
	authSvc := authService.NewService(profileRepo, directoryRepo, sessionRepo, presenceRepo,
		lockout.NewLockoutManager(redisDB.Client), auditLog, jwtManager, appMetrics)
	directorySvc := directoryService.NewService(profileRepo, directoryRepo, presenceRepo)
	messageSvc := messageService.NewService(messageRepo, directorySvc, broker,
		sms.NewSender(cfg.SMS, appMetrics), auditLog, appMetrics)
	defer messageSvc.Close()
	contactSvc := contactService.NewService(contactRepo)
	leadSvc := leadService.NewService(leadRepo)
	adminSvc := adminService.NewService(profileRepo, contactRepo, leadRepo, sessionRepo,
		presenceRepo, directoryRepo, auditLog, cfg.JWT.AccessTokenExpiry)

	// 6. Handlers
	authHdlr := authHandler.NewHandler(authSvc)
	directoryHdlr := directoryHandler.NewHandler(directorySvc)
	messageHdlr := messageHandler.NewHandler(messageSvc, directorySvc)
	contactHdlr := contactHandler.NewHandler(contactSvc)
	leadHdlr := leadHandler.NewHandler(leadSvc)
	adminHdlr := adminHandler.NewHandler(adminSvc)
	messageHub := wsHandler.NewMessageHub(broker, presenceRepo, cfg.Server.AllowedOrigins, appMetrics)

	// 7. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthCheck(serviceName, map[string]middleware.HealthCheckFunc{
		"cockroachdb": cockroachDB.Ping,
		"cassandra":   cassandraDB.Ping,
		"redis":       redisDB.Ping,
	}))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	authMiddleware := middleware.AuthMiddleware(jwtManager, middleware.NewRedisRevocationChecker(sessionRepo))
	poolGuard := middleware.NewDBPoolLimiter(cockroachDB.Pool, 0).Middleware()
	authLimit := middleware.NewRateLimiter(redisDB.Client, "auth", 10, time.Minute).Middleware()
	leadLimit := middleware.NewRateLimiter(redisDB.Client, "leads", 5, time.Minute).Middleware()

	// Real-time message feed; the token may travel as ?token= for browsers
	router.GET("/v1/messages/ws", authMiddleware, messageHub.ServeWS)

	v1 := router.Group("/v1")
	v1.Use(middleware.Timeout(constants.DefaultTimeout), poolGuard)
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", authLimit, authHdlr.SignUp)
			authGroup.POST("/signin", authLimit, authHdlr.SignIn)
			authGroup.POST("/refresh", authLimit, authHdlr.Refresh)
			authGroup.POST("/signout", authMiddleware, authHdlr.SignOut)
			authGroup.GET("/me", authMiddleware, authHdlr.Me)
		}

		// Public contact form
		v1.POST("/leads", leadLimit, leadHdlr.Create)

		protected := v1.Group("")
		protected.Use(authMiddleware)
		{
			users := protected.Group("/users")
			{
				users.GET("", directoryHdlr.List)
				users.GET("/online", directoryHdlr.Online)
				users.GET("/by-username/:username", directoryHdlr.ByUsername)
				users.PATCH("/me", directoryHdlr.UpdateMe)
				users.GET("/:id", directoryHdlr.Get)
			}

			messages := protected.Group("/messages")
			{
				messages.POST("", messageHdlr.Send)
				messages.GET("/thread", messageHdlr.Thread)
				messages.POST("/read", messageHdlr.MarkRead)
			}

			contacts := protected.Group("/contacts")
			{
				contacts.POST("", contactHdlr.Create)
				contacts.GET("", contactHdlr.List)
				contacts.GET("/:id", contactHdlr.Get)
				contacts.PUT("/:id", contactHdlr.Update)
				contacts.DELETE("/:id", contactHdlr.Delete)
			}

			leads := protected.Group("/leads")
			{
				leads.GET("", leadHdlr.List)
				leads.PATCH("/:id", leadHdlr.UpdateStatus)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.GET("/stats", adminHdlr.GetSystemStats)
				admin.GET("/users", adminHdlr.GetUsers)
				admin.POST("/users/:id/activate", adminHdlr.ActivateUser)
				admin.POST("/users/:id/suspend", adminHdlr.SuspendUser)
				admin.PUT("/users/:id/role", adminHdlr.ChangeRole)
				admin.DELETE("/users/:id", adminHdlr.DeleteUser)
				admin.GET("/security-events", adminHdlr.GetSecurityEvents)
			}
		}
	}

	// 8. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Messenger service starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 9. Graceful shutdown
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
