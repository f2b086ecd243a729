package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/filestore/cmd/api-gateway/middleware"
	"github.com/lgulliver/filestore/internal/auth"
	"github.com/lgulliver/filestore/internal/filestore"
	"github.com/lgulliver/filestore/internal/logging"
	"github.com/lgulliver/filestore/internal/metrics"
	"github.com/lgulliver/filestore/internal/storage"
	"github.com/lgulliver/filestore/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.Setup(cfg.Logging)
	logger.Info().Str("storage", cfg.Storage.Type).Msg("Starting file store API gateway")

	storageFactory := storage.NewStorageFactory(&cfg.Storage)
	blobStorage, err := storageFactory.CreateStorage()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storeMetrics := metrics.NewStoreMetrics(registry)

	store := filestore.New(blobStorage,
		filestore.WithLogger(logger),
		filestore.WithMetrics(storeMetrics),
	)

	var authService middleware.AuthServiceInterface
	if svc := auth.NewService(&cfg.Auth); svc.Enabled() {
		authService = svc
	} else {
		logger.Warn().Msg("No JWT secret or API keys configured, file routes are unauthenticated")
	}

	router := setupRouter(routerConfig{
		cfg:      cfg,
		store:    store,
		auth:     authService,
		metrics:  storeMetrics,
		gatherer: registry,
		logger:   logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		logger.Info().Msg("Server shutdown complete")
	}
}

type routerConfig struct {
	cfg      *config.Config
	store    *filestore.FileStore
	auth     middleware.AuthServiceInterface // nil disables authentication
	metrics  *metrics.StoreMetrics
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

func setupRouter(rc routerConfig) *gin.Engine {
	if rc.logger.GetLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestLogger(rc.logger, rc.metrics))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", handleHealth(rc.cfg.Storage.Type))

	if rc.cfg.Metrics.Enabled && rc.gatherer != nil {
		router.GET(rc.cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(rc.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	containers := api.Group("/containers/:container")
	if rc.auth != nil {
		containers.Use(middleware.AuthMiddleware(rc.auth))
	}
	{
		containers.GET("/files", handleListFiles(rc.store))
		containers.PUT("/files/*filename", handlePutFile(rc.store))
		containers.GET("/files/*filename", handleGetFile(rc.store))
		containers.HEAD("/files/*filename", handleHeadFile(rc.store))
		containers.DELETE("/files/*filename", handleDeleteFile(rc.store))
		containers.GET("/url/*filename", handleFileURL(rc.store))
		containers.DELETE("", handleDeleteContainer(rc.store))
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-API-Key, If-Match, If-None-Match")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Last-Modified, Location")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
