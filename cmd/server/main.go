package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethoslog/internal/config"
	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/handler"
	"github.com/ethoslog/internal/observability"
	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/router"
	"github.com/ethoslog/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	catalog, err := config.LoadCatalog(cfg.AchievementsPath)
	if err != nil {
		log.Fatalf("failed to load achievement catalog: %v", err)
	}

	rules := progress.DefaultRules()
	rules.TaskBaseXP = cfg.TaskBaseXP
	rules.ReversalLookback = cfg.ReversalLookback

	metrics := observability.NewProgressMetrics(prometheus.DefaultRegisterer)
	stack := service.NewStack(db.DB, catalog, service.StackOptions{
		Rules:    &rules,
		Logger:   logger,
		Recorder: metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention := time.Duration(cfg.EventRetentionDays) * 24 * time.Hour
	go purgeEvents(ctx, service.NewMaintenanceService(stack), retention, logger)

	// 设置并运行 Gin 服务器
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(handler.NewAPI(stack), prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "database", cfg.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}

func newLogger(cfg config.AppConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// purgeEvents 每天清理一次过期的事件记录
func purgeEvents(ctx context.Context, maintenance *service.MaintenanceService, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := maintenance.PurgeEvents(ctx, retention); err != nil {
			logger.Error("purge progress events failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
