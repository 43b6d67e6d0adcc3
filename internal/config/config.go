package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr       string
	Port             string
	DatabasePath     string
	GinMode          string
	LogLevel         string
	LogFormat        string
	AchievementsPath string

	TaskBaseXP         int
	ReversalLookback   time.Duration
	EventRetentionDays int
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := envOr("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	return AppConfig{
		ListenAddr:       listenAddr,
		Port:             port,
		DatabasePath:     envOr("DATABASE_PATH", "ethoslog.db"),
		GinMode:          envOr("GIN_MODE", "release"),
		LogLevel:         strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOr("LOG_FORMAT", "text")),
		AchievementsPath: strings.TrimSpace(os.Getenv("ACHIEVEMENTS_PATH")),

		TaskBaseXP:         envInt("TASK_BASE_XP", 10),
		ReversalLookback:   time.Duration(envInt("REVERSAL_LOOKBACK_DAYS", 7)) * 24 * time.Hour,
		EventRetentionDays: envInt("EVENT_RETENTION_DAYS", 90),
	}
}

// Validate 校验数值型配置，防止负数等异常值进入业务层。
func (c AppConfig) Validate() error {
	if c.TaskBaseXP <= 0 {
		return fmt.Errorf("TASK_BASE_XP must be positive, got %d", c.TaskBaseXP)
	}
	if c.ReversalLookback <= 0 {
		return fmt.Errorf("REVERSAL_LOOKBACK_DAYS must be positive")
	}
	if c.EventRetentionDays <= 0 {
		return fmt.Errorf("EVENT_RETENTION_DAYS must be positive, got %d", c.EventRetentionDays)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// envInt 解析失败时回退默认值，与字符串配置保持一致的容错行为。
func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
