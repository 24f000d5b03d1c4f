package main

import (
	"flag"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qrmark-backend/binding"
	"qrmark-backend/config"
	"qrmark-backend/handlers"
	"qrmark-backend/watermark"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Signing key is fatal at startup: without it no binding token can
	// be issued or verified.
	masterKey, err := binding.LoadOrGenerateKey(cfg.KeyFile)
	if err != nil {
		log.Fatalf("Failed to initialize signing key: %v", err)
	}
	tokenKey, err := binding.DeriveTokenKey(masterKey)
	if err != nil {
		log.Fatalf("Failed to derive token key: %v", err)
	}
	authority, err := binding.NewAuthority(tokenKey)
	if err != nil {
		log.Fatalf("Failed to create token authority: %v", err)
	}

	store, err := binding.NewStore(cfg.StorageDir, log)
	if err != nil {
		log.Fatalf("Failed to open registration storage: %v", err)
	}

	service := watermark.NewService(authority, store, watermark.Config{
		Workers:       cfg.WorkerCount,
		DefaultExpiry: time.Duration(cfg.TokenExpiryHours) * time.Hour,
		Logger:        log,
	})

	// Expired registration records are reaped periodically.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := service.CleanupExpiredRegistrations(); err != nil {
				log.WithError(err).Warn("registration cleanup failed")
			}
		}
	}()

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	watermarkHandler := handlers.NewWatermarkHandler(service, log)
	securityHandler := handlers.NewSecurityHandler(service, log)

	api := router.Group("/api/v1")
	{
		api.GET("/health", watermarkHandler.HealthCheck)

		wm := api.Group("/watermark")
		{
			wm.POST("/embed", watermarkHandler.EmbedImages)
			wm.POST("/extract", watermarkHandler.ExtractImages)
			wm.POST("/capacity", watermarkHandler.Capacity)
		}

		sec := api.Group("/security")
		{
			sec.POST("/pre-register", securityHandler.PreRegister)
			sec.POST("/verify", securityHandler.VerifyBinding)
		}
	}

	log.Infof("Server starting on port %s", cfg.Port)
	log.Info("API endpoints:")
	log.Info("  POST /api/v1/watermark/embed     - Embed QR payload into cover images")
	log.Info("  POST /api/v1/watermark/extract   - Extract QR payload from stego images")
	log.Info("  POST /api/v1/watermark/capacity  - Analyze cover image capacity")
	log.Info("  POST /api/v1/security/pre-register - Pre-register a document binding")
	log.Info("  POST /api/v1/security/verify     - Verify a QR-document binding")
	log.Info("  GET  /api/v1/health              - Health check")

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
