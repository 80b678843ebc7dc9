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

	"commhub-backend/internal/call"
	callHandler "commhub-backend/internal/handler/http/call"
	wsHandler "commhub-backend/internal/handler/ws"
	"commhub-backend/internal/middleware"
	"commhub-backend/internal/signaling"
	"commhub-backend/internal/softphone"
	"commhub-backend/pkg/config"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/database"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

const serviceName = "softphone"

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

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 1. Sign in to the messenger API
	client := softphone.NewClient(cfg.Softphone.APIURL, constants.DefaultTimeout)
	self, err := client.SignIn(ctx, cfg.Softphone.Email, cfg.Softphone.Password)
	if err != nil {
		logger.Fatal("Failed to sign in", zap.String("api_url", cfg.Softphone.APIURL), zap.Error(err))
	}
	logger.Info("Signed in", zap.String("user_id", self.ID.String()), zap.String("username", self.Username))

	if cfg.JWT.AccessTokenExpiry > 0 {
		go softphone.KeepSignedIn(ctx, client, cfg.JWT.AccessTokenExpiry/2)
	}

	// 2. Signaling provider
	var signals call.Provider
	checks := map[string]middleware.HealthCheckFunc{}
	switch cfg.Call.SignalingBackend {
	case "redis":
		redisDB, err := database.NewRedisDB(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisDB.Close()
		signals = signaling.NewRedisProvider(redisDB.Client)
		checks["redis"] = redisDB.Ping
	default:
		ws, err := signaling.DialWS(ctx, cfg.Call.SignalingURL, client.AccessToken)
		if err != nil {
			logger.Fatal("Failed to connect to signaling relay", zap.String("url", cfg.Call.SignalingURL), zap.Error(err))
		}
		defer ws.Close()
		signals = ws
	}
	logger.Info("Signaling connected", zap.String("backend", cfg.Call.SignalingBackend))

	// 3. Media and peer connection
	var source call.MediaSource = call.NewSyntheticSource()
	if cfg.Call.MediaSource == "device" {
		device, err := call.NewDeviceSource()
		if err != nil {
			logger.Fatal("Capture devices unavailable", zap.Error(err))
		}
		source = device
	}
	media := call.NewMediaAdapter(source)

	peerCfg := call.DefaultPeerConfig()
	peerCfg.ICEServers = cfg.Call.ICEServers
	peerCfg.IncludeLoopback = cfg.Call.IncludeLoopback
	peer := call.NewPeerManager(peerCfg, media)

	// 4. Call controller
	appMetrics := metrics.NewMetrics(serviceName)
	events := wsHandler.NewEventHub(cfg.Server.AllowedOrigins)
	controller := call.NewController(
		call.Config{CallTimeout: cfg.Call.CallTimeout, TickInterval: cfg.Call.TickInterval},
		self,
		media,
		peer,
		call.NewTransport(signals, self.ID, appMetrics),
		softphone.NewListener(events),
		appMetrics,
	)
	if err := controller.Start(ctx); err != nil {
		logger.Fatal("Failed to listen for calls", zap.Error(err))
	}

	// 5. Local control API
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", middleware.HealthCheck(serviceName, checks))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	h := callHandler.NewHandler(controller, client)
	v1 := router.Group("/v1/call")
	{
		v1.POST("/initiate", h.Initiate)
		v1.POST("/accept", h.Accept)
		v1.POST("/reject", h.Reject)
		v1.POST("/end", h.End)
		v1.POST("/mute", h.Mute)
		v1.GET("/session", h.Session)
		v1.GET("/events", events.ServeWS)
	}

	server := &http.Server{
		Addr:              cfg.Softphone.ControlAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Softphone control API starting", zap.String("addr", cfg.Softphone.ControlAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start control API", zap.Error(err))
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down softphone...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	controller.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Control API forced to shutdown", zap.Error(err))
	}
	if err := client.SignOut(shutdownCtx); err != nil {
		logger.Warn("Failed to sign out", zap.Error(err))
	}

	logger.Info("Softphone exited")
}
