package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "BACKNEWS_ADMIN_CONFIG"

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string `yaml:"listenAddr"`
	Port          string `yaml:"port"`
	DatabasePath  string `yaml:"databasePath"`
	SessionSecret string `yaml:"sessionSecret"`
	GinMode       string `yaml:"ginMode"`
	LogLevel      string `yaml:"logLevel"`

	// Upstream BackNews API.
	APIBaseURL     string        `yaml:"apiBaseUrl"`
	MediaBaseURL   string        `yaml:"mediaBaseUrl"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	UpstreamRPS    float64       `yaml:"upstreamRps"`
	UpstreamBurst  int           `yaml:"upstreamBurst"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	SearchDebounce      time.Duration `yaml:"searchDebounce"`
	ConfirmDelay        time.Duration `yaml:"confirmDelay"`
	UserRefreshDelay    time.Duration `yaml:"userRefreshDelay"`
	UserRefreshSchedule string        `yaml:"userRefreshSchedule"`
	EditorIdleTTL       time.Duration `yaml:"editorIdleTtl"`
	CookieSecure        bool          `yaml:"cookieSecure"`
}

// Load 从 YAML 文件（可选）与环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = merge(cfg, fileCfg)
		}
	}

	applyEnv(&cfg)

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.MediaBaseURL = strings.TrimRight(cfg.MediaBaseURL, "/")

	return cfg
}

func defaults() AppConfig {
	return AppConfig{
		Port:                "8080",
		DatabasePath:        "backnews-admin.db",
		SessionSecret:       "backnews-admin-dev-secret",
		GinMode:             "release",
		LogLevel:            "info",
		APIBaseURL:          "http://localhost:5000/api",
		MediaBaseURL:        "https://infocryptox.com",
		RequestTimeout:      30 * time.Second,
		UpstreamRPS:         20,
		UpstreamBurst:       40,
		SearchDebounce:      500 * time.Millisecond,
		ConfirmDelay:        2 * time.Second,
		UserRefreshDelay:    time.Second,
		UserRefreshSchedule: "@every 10m",
		EditorIdleTTL:       30 * time.Minute,
	}
}

func readFile(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg AppConfig
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return AppConfig{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

func merge(base, override AppConfig) AppConfig {
	if override.ListenAddr != "" {
		base.ListenAddr = override.ListenAddr
	}
	if override.Port != "" {
		base.Port = override.Port
	}
	if override.DatabasePath != "" {
		base.DatabasePath = override.DatabasePath
	}
	if override.SessionSecret != "" {
		base.SessionSecret = override.SessionSecret
	}
	if override.GinMode != "" {
		base.GinMode = override.GinMode
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.APIBaseURL != "" {
		base.APIBaseURL = override.APIBaseURL
	}
	if override.MediaBaseURL != "" {
		base.MediaBaseURL = override.MediaBaseURL
	}
	if override.RequestTimeout > 0 {
		base.RequestTimeout = override.RequestTimeout
	}
	if override.UpstreamRPS > 0 {
		base.UpstreamRPS = override.UpstreamRPS
	}
	if override.UpstreamBurst > 0 {
		base.UpstreamBurst = override.UpstreamBurst
	}
	if override.RedisAddr != "" {
		base.RedisAddr = override.RedisAddr
		base.RedisPassword = override.RedisPassword
		base.RedisDB = override.RedisDB
	}
	if override.SearchDebounce > 0 {
		base.SearchDebounce = override.SearchDebounce
	}
	if override.ConfirmDelay > 0 {
		base.ConfirmDelay = override.ConfirmDelay
	}
	if override.UserRefreshDelay > 0 {
		base.UserRefreshDelay = override.UserRefreshDelay
	}
	if override.UserRefreshSchedule != "" {
		base.UserRefreshSchedule = override.UserRefreshSchedule
	}
	if override.EditorIdleTTL > 0 {
		base.EditorIdleTTL = override.EditorIdleTTL
	}
	if override.CookieSecure {
		base.CookieSecure = true
	}
	return base
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setString(&cfg.GinMode, "GIN_MODE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.APIBaseURL, "BACKNEWS_API_URL")
	setString(&cfg.MediaBaseURL, "BACKNEWS_MEDIA_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.UserRefreshSchedule, "USER_REFRESH_SCHEDULE")

	setDuration(&cfg.RequestTimeout, "REQUEST_TIMEOUT")
	setDuration(&cfg.SearchDebounce, "SEARCH_DEBOUNCE")
	setDuration(&cfg.ConfirmDelay, "CONFIRM_DELAY")
	setDuration(&cfg.UserRefreshDelay, "USER_REFRESH_DELAY")
	setDuration(&cfg.EditorIdleTTL, "EDITOR_IDLE_TTL")

	if raw := strings.TrimSpace(os.Getenv("UPSTREAM_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			cfg.UpstreamRPS = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("UPSTREAM_BURST")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.UpstreamBurst = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			cfg.RedisDB = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("COOKIE_SECURE")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.CookieSecure = v
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config: ignoring invalid %s=%q", key, raw)
		return
	}
	*dst = d
}
