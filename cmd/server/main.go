package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/config"
	"github.com/backnews/admin/internal/db"
	"github.com/backnews/admin/internal/handler"
	"github.com/backnews/admin/internal/logging"
	"github.com/backnews/admin/internal/router"
	"github.com/backnews/admin/internal/scheduler"
	"github.com/backnews/admin/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	var store cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer redisCache.Close()
			store = redisCache
		}
	}

	client := backnews.New(cfg.APIBaseURL,
		backnews.WithTimeout(cfg.RequestTimeout),
		backnews.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst),
		backnews.WithLogger(logging.Component(logger, "backnews")),
	)

	sessions := session.NewStore(db.DB, cfg.SessionSecret, logging.Component(logger, "session"))
	reconciler := session.NewReconciler(sessions, client, cfg.UserRefreshDelay, logging.Component(logger, "session"))
	defer reconciler.Stop()

	api := handler.NewAPI(handler.Deps{
		Client:         client,
		Sessions:       sessions,
		Reconciler:     reconciler,
		Cache:          store,
		Logger:         logger,
		MediaBaseURL:   cfg.MediaBaseURL,
		ConfirmDelay:   cfg.ConfirmDelay,
		SearchDebounce: cfg.SearchDebounce,
		EditorIdleTTL:  cfg.EditorIdleTTL,
	})
	defer api.Close()

	jobs := scheduler.New(logging.Component(logger, "scheduler"))
	if err := jobs.Register(scheduler.Maintenance{
		RefreshSpec: cfg.UserRefreshSchedule,
		Refresher:   reconciler,
		Purger:      sessions,
		Editors:     api.Editors(),
		Pollers:     api.Pollers(),
	}); err != nil {
		log.Fatalf("failed to schedule jobs: %v", err)
	}
	jobs.Start()

	// 设置并运行 Gin 服务器
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(api, cfg, logging.Component(logger, "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("admin server listening", "addr", cfg.ListenAddr, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	jobs.Stop(ctx)
	logger.Info("admin server stopped")
}
