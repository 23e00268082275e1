// Package config loads the tracker configuration from TOML files, .env files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "market-tracker/internal/errors"
)

// AppName is used for the config directory and log file names.
const AppName = "market-tracker"

// Config holds the full application configuration.
type Config struct {
	API           APIConfig          `mapstructure:"api"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit"`
	Polling       PollingConfig      `mapstructure:"polling"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Security      SecurityConfig     `mapstructure:"security"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Server        ServerConfig       `mapstructure:"server"`
	Symbols       SymbolsConfig      `mapstructure:"symbols"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// APIConfig configures the upstream market-data API. Token is never read
// from config.toml; see ResolveToken.
type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	DemoMode bool          `mapstructure:"demo_mode"`
	Token    string        `mapstructure:"-"`
}

// RateLimitConfig holds per-category request budgets.
type RateLimitConfig struct {
	QuotesPerWindow  int           `mapstructure:"quotes_per_window"`
	CandlesPerWindow int           `mapstructure:"candles_per_window"`
	Window           time.Duration `mapstructure:"window"`
}

// PollingConfig configures the watch loop.
type PollingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// StorageConfig selects the alert persistence backend.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	Key           string `mapstructure:"key"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	Level    string         `mapstructure:"level"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TerminalConfig configures console notifications.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Bell    bool `mapstructure:"bell"`
	Color   bool `mapstructure:"color"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// SecurityConfig holds audit settings.
type SecurityConfig struct {
	AuditEnabled bool   `mapstructure:"audit_enabled"`
	AuditDir     string `mapstructure:"audit_dir"`
}

// LoggingConfig mirrors logging.LogConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// ServerConfig configures the dashboard file server.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// SymbolsConfig points at an optional YAML symbol table.
type SymbolsConfig struct {
	File string `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads config.toml from configDir, creating a commented template when
// it does not exist, then applies .env files and environment overrides.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	cfg := &Config{Dir: configDir}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, p := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("api.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.demo_mode", false)

	v.SetDefault("rate_limit.quotes_per_window", 60)
	v.SetDefault("rate_limit.candles_per_window", 30)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("polling.interval", "60s")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.key", "marketAlerts")
	v.SetDefault("storage.sqlite_path", filepath.Join(configDir, "data", "alerts.db"))
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_prefix", AppName+":")

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.terminal.enabled", true)
	v.SetDefault("notifications.terminal.bell", true)
	v.SetDefault("notifications.terminal.color", true)

	v.SetDefault("security.audit_enabled", true)
	v.SetDefault("security.audit_dir", filepath.Join(configDir, "audit"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "tracker.log"))
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 14)

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.static_dir", "build")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("TRACKER_DEMO_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.API.DemoMode = b
		}
	}
	if v := os.Getenv("TRACKER_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TRACKER_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("TRACKER_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("TRACKER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Polling.Interval = d
		}
	}
	if v := os.Getenv("TRACKER_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TRACKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RateLimit.QuotesPerWindow <= 0 || c.RateLimit.CandlesPerWindow <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "rate_limit capacities must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "rate_limit.window must be positive")
	}
	if c.Polling.Interval <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "polling.interval must be positive")
	}

	switch c.Storage.Backend {
	case "sqlite", "memory", "redis", "postgres":
	default:
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.PostgresDSN == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "storage.postgres_dsn is required for the postgres backend")
	}

	switch c.Notifications.Level {
	case "all", "alerts_only", "errors_only", "none":
	default:
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown notifications.level %q", c.Notifications.Level)
	}
	if c.Notifications.Telegram.Enabled && (c.Notifications.Telegram.BotToken == "" || c.Notifications.Telegram.ChatID == 0) {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "telegram notifications need bot_token and chat_id")
	}
	return nil
}

// UseDemo reports whether quotes should come from the built-in demo data.
func (c *Config) UseDemo() bool {
	return c.API.DemoMode || c.API.Token == ""
}
