package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roomfabric/hub/internal/v1/adminapi"
	"github.com/roomfabric/hub/internal/v1/broadcast"
	"github.com/roomfabric/hub/internal/v1/bus"
	"github.com/roomfabric/hub/internal/v1/config"
	"github.com/roomfabric/hub/internal/v1/health"
	"github.com/roomfabric/hub/internal/v1/historyapi"
	"github.com/roomfabric/hub/internal/v1/hub"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/middleware"
	"github.com/roomfabric/hub/internal/v1/ratelimit"
	"github.com/roomfabric/hub/internal/v1/registry"
	"github.com/roomfabric/hub/internal/v1/store"
)

func main() {
	// Load .env file for local development. Try multiple paths to handle
	// different ways of running the app.
	envPaths := []string{".env", "../../../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment from", "path", path)
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal(ctx, "failed to connect to store", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logging.Fatal(ctx, "failed to run migrations", zap.Error(err))
	}

	var busSvc *bus.Service
	if cfg.RedisEnabled {
		busSvc, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
		}
		defer busSvc.Close()
	}

	limiter, err := ratelimit.NewRateLimiter(cfg, busClient(busSvc))
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	reg := registry.New()
	pipeline := broadcast.NewPipeline(st, busSvc)
	allowedOrigins := parseOrigins(cfg.AllowedOrigins)
	signalingHub := hub.New(reg, pipeline, busSvc, limiter, allowedOrigins)

	// busSvc is a concrete *bus.Service; when nil it must not be boxed into
	// the Invalidator interface directly, or the resulting interface value
	// would be non-nil (a nil pointer with a type) and the nil check in
	// BlockUser would never fire.
	var invalidator adminapi.Invalidator
	if busSvc != nil {
		invalidator = busSvc
	}
	adminHandler := adminapi.NewHandler(st, signalingHub, invalidator, cfg.AdminPubKey)
	historyHandler := historyapi.NewHandler(st, cfg.AdminPubKey)
	healthHandler := health.NewHandler(busSvc, st)

	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Correlation-ID")
	router.Use(cors.New(corsCfg))
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(limiter.GlobalMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	router.GET("/ws", signalingHub.ServeWs)

	api := router.Group("/api")
	historyapi.RegisterRoutes(api, historyHandler, limiter)
	adminapi.RegisterRoutes(api, adminHandler, cfg.AdminPubKey)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "server exiting")
}

// parseOrigins splits a comma-separated ALLOWED_ORIGINS value into a
// trimmed, non-empty slice. An empty input means "allow any origin".
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// busClient exposes the *redis.Client backing bus.Service to the rate
// limiter, which needs it to build a Redis-backed limiter store. Returns nil
// when running in single-instance (no Redis) mode, and the limiter falls
// back to an in-memory store.
func busClient(b *bus.Service) *redis.Client {
	if b == nil {
		return nil
	}
	return b.Client()
}
