package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"bookvault/internal/app"
	"bookvault/internal/config"
	"bookvault/internal/ratelimit"
	"bookvault/internal/server"
	"bookvault/internal/upload"
	"bookvault/internal/util"
	"bookvault/pkg/auth"
	"bookvault/pkg/storage"
	"bookvault/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	assets, err := storage.NewMinioAssetStore(
		cfg.MinioEndpoint,
		cfg.MinioAccessKey,
		cfg.MinioSecretKey,
		cfg.MinioBucket,
		cfg.MinioPublicBaseURL,
		cfg.MinioUseSSL,
	)
	if err != nil {
		log.Fatalf("failed to init asset store: %v", err)
	}
	temp, err := upload.NewTempStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("failed to init staging dir: %v", err)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.NewFixedWindowLimiter(
			cfg.RedisAddr,
			cfg.RedisPassword,
			"bookvault:ratelimit",
			cfg.RateLimit,
			time.Duration(cfg.RateLimitWindowSecs)*time.Second,
		)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:  dataStore,
		Assets: assets,
		Temp:   temp,
		Tokens: tokens,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:             appCore,
		Tokens:          tokens,
		Temp:            temp,
		Limiter:         limiter,
		Env:             cfg.Env,
		MaxRequestBytes: cfg.MaxRequestBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("bookvault server listening", "addr", addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
