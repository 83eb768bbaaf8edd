package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	catalogcli "ward-daily-census/internal/adapters/catalog"
	"ward-daily-census/internal/adapters/cache/sqlite"
	pg "ward-daily-census/internal/adapters/storage/postgres"
	"ward-daily-census/internal/config"
	"ward-daily-census/internal/platform/logger"
	"ward-daily-census/internal/ports/catalog"
	"ward-daily-census/internal/router"
)

func main() {
	cfg := config.Load()

	zl, err := logger.NewFromEnv()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	opts := router.Options{
		AuthVerifier:  nil, // modo dev: identidad por cabeceras X-Debug-*
		ClientID:      cfg.ClientID,
		AuditExcluded: cfg.AuditExcluded,
		Logger:        zl,
	}

	if cfg.DBDSN != "" {
		db, err := pg.Open(cfg.DBDSN)
		if err != nil {
			zl.Fatal("postgres open failed", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		if err := pg.EnsureSchema(context.Background(), db); err != nil {
			zl.Fatal("postgres schema failed", zap.Error(err))
		}
		opts.DB = db
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		opts.Redis = rdb
	}

	if cfg.CachePath != "" {
		cache, err := sqlite.Open(cfg.CachePath, 0)
		if err != nil {
			zl.Fatal("sqlite cache open failed", zap.String("path", cfg.CachePath), zap.Error(err))
		}
		defer func() { _ = cache.Close() }()
		opts.Cache = cache
	}

	if cfg.CatalogURL != "" {
		var dir catalog.Directory
		dir, err = catalogcli.NewClient(cfg.CatalogURL, 5*time.Second, nil)
		if err != nil {
			zl.Warn("catalog client init failed, using static fallback", zap.Error(err))
			dir = catalogcli.NewStatic(nil)
		}
		opts.Catalog = dir
	}

	handler, mgr := router.Build(opts)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		zl.Info("starting server", zap.String("addr", cfg.HTTPAddr), zap.String("client_id", cfg.ClientID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	// primero se cancelan las suscripciones vivas, después el servidor
	mgr.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown incomplete", zap.Error(err))
	}
}
