package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safespace/internal/core/domain"
	"safespace/internal/core/services"
	httphandlers "safespace/internal/handlers/http"
	"safespace/internal/infrastructure/auth"
	"safespace/internal/infrastructure/media"
	"safespace/internal/infrastructure/middleware"
	"safespace/internal/infrastructure/monitoring"
	"safespace/internal/infrastructure/registry"
	signalchannel "safespace/internal/infrastructure/signal"
	webrtcinfra "safespace/internal/infrastructure/webrtc"
	"safespace/pkg/config"
	"safespace/pkg/logger"
	"safespace/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "safespace-callcore",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	collector := monitoring.NewCollector()

	reg := registry.New(registry.Config{
		MaxConnections:       cfg.Registry.MaxConnections,
		MaxReconnectAttempts: cfg.Registry.MaxReconnectAttempts,
		ReconnectInterval:    cfg.Registry.ReconnectInterval,
		IdleTimeout:          cfg.Registry.IdleTimeout,
		SweepInterval:        cfg.Registry.SweepInterval,
		HandshakeTimeout:     cfg.Signaling.HandshakeTimeout,
	}, zapLogger, collector)

	channel := signalchannel.NewChannel(signalchannel.Config{
		BaseURL:           cfg.Signaling.BaseURL,
		MessagesPerSecond: cfg.Signaling.MessagesPerSecond,
		Burst:             cfg.Signaling.Burst,
	}, reg, zapLogger, collector)

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	linkConfig := webrtcinfra.Config{ICEServers: iceServers}
	linkConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	linkConfig.PortRange.Max = cfg.WebRTC.PortRange.Max
	linkFactory := webrtcinfra.NewFactory(linkConfig, zapLogger)

	mediaProvider := media.NewSyntheticProvider(zapLogger)
	tokens := auth.NewTokenProvider(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)

	self := domain.Participant{
		ID:   domain.UserID(envOr("SAFESPACE_USER_ID", "callcore-"+uuid.NewString()[:8])),
		Name: envOr("SAFESPACE_USER_NAME", "callcore"),
	}
	roomID := domain.RoomID(envOr("SAFESPACE_ROOM_ID", "lobby"))

	coordinator := services.NewCallCoordinator(self, channel, mediaProvider, linkFactory, zapLogger, collector)
	diagnostics := services.NewDiagnosticsAggregator(coordinator, zapLogger)

	token, err := tokens.ChannelToken(self.ID, roomID)
	if err != nil {
		log.Fatalw("failed to issue channel token", "error", err)
	}
	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Signaling.HandshakeTimeout)
	if err := channel.Connect(connectCtx, roomID, self.ID, token); err != nil {
		// Signaling may come up later; reconnection is driven by the caller
		// retrying, so a failed first connect is not fatal.
		log.Warnw("initial signaling connect failed", "room_id", roomID, "error", err)
	}
	connectCancel()

	health := monitoring.NewHealthChecker()
	health.AddCheck("signaling", func(ctx context.Context) (bool, error) {
		return channel.IsOpen(), nil
	}, 2*time.Second)
	health.AddCheck("registry", func(ctx context.Context) (bool, error) {
		stats := reg.Stats()
		return stats.Total <= stats.MaxConnections, nil
	}, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	callHandler := httphandlers.NewCallHandler(coordinator, diagnostics, reg)
	api := router.Group("/")
	if cfg.Auth.TokenSecret != "" && os.Getenv("SAFESPACE_API_AUTH") == "enabled" {
		api.Use(middleware.AuthMiddleware(tokens))
	}
	callHandler.SetupRoutes(api)

	router.GET("/health", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting call core", "address", cfg.HTTP.Address, "room_id", roomID, "user_id", self.ID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		srv.Close()
	}

	if err := coordinator.EndCall(); err != nil {
		log.Errorw("error ending call during shutdown", "error", err)
	}
	if err := channel.Close(); err != nil {
		log.Errorw("error closing signaling channel", "error", err)
	}
	reg.Close()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("call core stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
