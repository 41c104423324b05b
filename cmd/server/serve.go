package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuel-monitor/internal/alerts"
	"fuel-monitor/internal/api/handlers"
	"fuel-monitor/internal/api/middleware"
	"fuel-monitor/internal/api/routes"
	"fuel-monitor/internal/config"
	"fuel-monitor/internal/logging"
	"fuel-monitor/internal/repository"
	"fuel-monitor/internal/services"
	"fuel-monitor/internal/websocket"
	"fuel-monitor/pkg/cache"
	"fuel-monitor/pkg/cleanup"
	"fuel-monitor/pkg/redis"
	"fuel-monitor/pkg/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().String("port", "", "Port to listen on (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var redisClient *redis.Client
	var rdb *goredis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(cfg.Redis)
		defer redisClient.Close()

		healthStatus := redisClient.HealthCheck()
		if healthStatus.IsConnected {
			logger.Info("redis connected", "addr", healthStatus.ConnectionInfo)
		} else {
			logger.Warn("redis connection failed, will retry automatically", "error", healthStatus.Error)
		}
		rdb = redisClient.GetClient()
	}

	blob, err := storage.Open(ctx, cfg.Storage, rdb)
	if err != nil {
		return fmt.Errorf("failed to open alert storage: %w", err)
	}
	defer blob.Close()

	store := alerts.NewStore(blob,
		alerts.WithKey(cfg.Alerts.StorageKey),
		alerts.WithMaxAlerts(cfg.Alerts.MaxAlerts),
		alerts.WithMaxAge(cfg.Alerts.MaxAge),
		alerts.WithLogger(logger.With("component", "alerts")),
	)
	if err := store.Load(ctx); err != nil {
		logger.Warn("starting with an empty alert ledger", "error", err)
	}
	defer store.Close()

	fuelService := services.NewFuelService(
		repository.NewFuelRepository(cfg.Backend),
		store,
		cfg.Detection,
		logger.With("component", "fuel"),
	)
	fuelService.SetImportLog(alerts.NewImportLog(blob, cfg.Alerts.StorageKey+alerts.ImportLogSuffix, logger.With("component", "imports")))
	if redisClient != nil && cfg.Redis.VehicleCacheTTL > 0 {
		cacheConfig := cache.DefaultCacheConfig()
		cacheConfig.VehicleListTTL = cfg.Redis.VehicleCacheTTL
		fuelService.SetCacheManager(cache.NewRedisCacheManager(redisClient, cacheConfig))
		fuelService.SetCacheConfig(cacheConfig)
	}

	wsManager := websocket.NewManager()
	wsManager.SetAlertActions(store)
	if err := wsManager.Start(); err != nil {
		return fmt.Errorf("failed to start websocket manager: %w", err)
	}
	defer wsManager.Stop()

	feed := store.Subscribe()
	defer feed.Close()
	go wsManager.Follow(ctx, feed.C())

	if cfg.Alerts.SweepInterval > 0 && cfg.Alerts.MaxAge > 0 {
		retention := cleanup.NewRetentionService(store, cfg.Alerts.SweepInterval)
		go retention.Start(ctx)
		defer retention.Stop()
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit)
		go pruneLimiter(ctx, limiter)
	}

	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	routes.SetupRoutes(router, routes.Handlers{
		Fuel:      handlers.NewFuelHandler(fuelService),
		Anomaly:   handlers.NewAnomalyHandler(fuelService),
		Alert:     handlers.NewAlertHandler(store),
		Health:    handlers.NewHealthHandler(blob, cfg.Alerts.StorageKey, store, redisClient, wsManager),
		WebSocket: handlers.NewWebSocketHandler(wsManager),
	}, limiter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Protocol"},
		ExposeHeaders: []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
	}

	// Handle wildcard origin for development
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	return corsConfig
}

func pruneLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Cleanup(); n > 0 {
				log.Printf("Rate limiter dropped %d idle clients", n)
			}
		}
	}
}
