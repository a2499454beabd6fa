// edgecached fronts the app origin with the offline cache layer: it
// precaches the configured assets, serves UI components cache-first, and
// keeps navigations usable when the origin is unreachable. Cart API paths
// are excluded from every cache partition.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cartsync/config"
	"cartsync/offline"
	"cartsync/store"
)

func main() {
	config.LoadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv := store.OpenKV(ctx, config.AppConfig.RedisURL,
		config.AppConfig.RedisAddr, config.AppConfig.RedisPassword, logger)

	layer := offline.NewLayer(offline.Config{
		Upstream:        config.AppConfig.ProxyUpstream,
		OfflinePage:     config.AppConfig.OfflinePage,
		Precache:        config.AppConfig.PrecacheAssets,
		ComponentAssets: config.AppConfig.ComponentAssets,
		ComponentPaths:  config.AppConfig.ComponentPaths,
		ExternalAssets:  config.AppConfig.ExternalAssets,
		ExcludePaths:    config.AppConfig.ExcludePaths,
	}, kv, logger)

	if err := layer.Install(ctx); err != nil {
		logger.Fatal("offline cache install failed", zap.Error(err))
	}

	go func() {
		if err := layer.Run(ctx, 5*time.Second); err != nil && ctx.Err() == nil {
			logger.Error("cache activation failed", zap.Error(err))
		}
	}()

	if config.AppConfig.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	layer.Routes(router)

	addr := ":" + config.AppConfig.ProxyPort
	logger.Info("edge cache starting", zap.String("addr", addr),
		zap.String("upstream", config.AppConfig.ProxyUpstream))
	if err := router.Run(addr); err != nil {
		logger.Fatal("edge cache failed", zap.Error(err))
	}
}
