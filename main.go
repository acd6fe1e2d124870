package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lucasnobrega7/lobe-chat/internal/api"
	"github.com/lucasnobrega7/lobe-chat/internal/auth"
	"github.com/lucasnobrega7/lobe-chat/internal/blob"
	"github.com/lucasnobrega7/lobe-chat/internal/cache"
	"github.com/lucasnobrega7/lobe-chat/internal/config"
	"github.com/lucasnobrega7/lobe-chat/internal/ratelimit"
	"github.com/lucasnobrega7/lobe-chat/internal/redis"
	"github.com/lucasnobrega7/lobe-chat/internal/service/ai"
	"github.com/lucasnobrega7/lobe-chat/internal/service/chatstore"
	"github.com/lucasnobrega7/lobe-chat/internal/storage"
	"github.com/lucasnobrega7/lobe-chat/internal/worker"
)

func main() {
	cfgPath := os.Getenv("LOBECHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	dbType := os.Getenv("LOBECHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.WithField("driver", dbType).Info("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, caching and rate limiting degraded")
		rdb = nil
	} else {
		defer rdb.Close()
	}

	store := chatstore.NewService(db, cache.New(rdb))
	limiter := ratelimit.New(rdb, cfg.BasicConfig.RateLimit, time.Duration(cfg.BasicConfig.RateWindowHours)*time.Hour)
	registry := ai.NewRegistry(cfg.Models)
	aiService := ai.NewService(cfg, registry)
	authService := auth.NewService(db, auth.Config{
		TokenTTL:       time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		CookieName:     cfg.Auth.CookieName,
		CSRFCookieName: cfg.Auth.CSRFCookieName,
	})

	var blobs blob.Store
	switch cfg.Blob.Backend {
	case "gcs":
		blobs, err = blob.NewGCSStore(context.Background(), cfg.Blob.Bucket)
		if err != nil {
			log.WithError(err).Fatal("init gcs blob store")
		}
	default:
		blobs = blob.NewLocalStore(cfg.Blob.LocalDir, cfg.Blob.BaseURL)
	}

	pool := worker.NewPool(4, 64)
	defer pool.Stop()

	handlers := api.NewHandler(store, authService, registry, aiService, limiter, blobs, pool, cfg)

	router := gin.Default()
	handlers.RegisterRoutes(router)
	if local, ok := blobs.(*blob.LocalStore); ok {
		router.Static(cfg.Blob.BaseURL, local.BaseDir())
	}

	if err := router.Run(cfg.BasicConfig.ServerAddress); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
