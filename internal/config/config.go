package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	AI          AIConfig          `mapstructure:"ai"`
	Storage     StorageConfig     `mapstructure:"storage"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Learning    LearningConfig    `mapstructure:"learning"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	I18n        I18nConfig        `mapstructure:"i18n"`
}

type BotConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Token         string        `mapstructure:"token"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
	MaxUploadSize int           `mapstructure:"max_upload_size"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type AIConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	VisionModel string        `mapstructure:"vision_model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type StorageConfig struct {
	Type     string         `mapstructure:"type"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Memory   MemoryStoreCfg `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type MemoryStoreCfg struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type ObjectStoreConfig struct {
	Type     string `mapstructure:"type"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Prefix   string `mapstructure:"prefix"`
	Endpoint string `mapstructure:"endpoint"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// MemoryConfig tunes the conversation memory
type MemoryConfig struct {
	MaxMessages   int           `mapstructure:"max_messages"`
	MinFrequency  int           `mapstructure:"min_frequency"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
	HistoryLimit  int           `mapstructure:"history_limit"`
}

// LearningConfig tunes the pattern learner
type LearningConfig struct {
	MinDataPoints     int           `mapstructure:"min_data_points"`
	MinSeasonalPoints int           `mapstructure:"min_seasonal_points"`
	FetchLimit        int           `mapstructure:"fetch_limit"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	InsightThreshold  float64       `mapstructure:"insight_threshold"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	// AdminToken guards the privacy export/delete routes; empty leaves them unmounted
	AdminToken string `mapstructure:"admin_token"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			UpdateTimeout: 60,
			MaxUploadSize: 10 << 20,
		},
		AI: AIConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			VisionModel: "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
		},
		Storage: StorageConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "ledger",
			},
			Memory: MemoryStoreCfg{
				DefaultExpiration: 0,
				CleanupInterval:   10 * time.Minute,
			},
		},
		ObjectStore: ObjectStoreConfig{
			Type:   "memory",
			Region: "us-east-1",
			Prefix: "documents",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
			MaxSize: 10000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 20,
			Burst:             5,
		},
		Memory: MemoryConfig{
			MaxMessages:   50,
			MinFrequency:  3,
			Retention:     30 * 24 * time.Hour,
			SweepSchedule: "@hourly",
			HistoryLimit:  10,
		},
		Learning: LearningConfig{
			MinDataPoints:     5,
			MinSeasonalPoints: 12,
			FetchLimit:        1000,
			FetchTimeout:      15 * time.Second,
			InsightThreshold:  0.7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Port:    9090,
				Path:    "/metrics",
			},
		},
		I18n: I18nConfig{
			DefaultLanguage: "en",
			Languages:       []string{"en", "es"},
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("bot.token", "BOT_TOKEN")
	v.BindEnv("ai.api_key", "AI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("storage.redis.addr", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("storage.postgres.url", "DATABASE_URL")
	v.BindEnv("object_store.bucket", "S3_BUCKET")
	v.BindEnv("object_store.region", "AWS_REGION")
	v.BindEnv("monitoring.admin_token", "ADMIN_TOKEN")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := v.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := v.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("bot.enabled", d.Bot.Enabled)
	v.SetDefault("bot.update_timeout", d.Bot.UpdateTimeout)
	v.SetDefault("bot.max_upload_size", d.Bot.MaxUploadSize)
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.vision_model", d.AI.VisionModel)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("ai.temperature", d.AI.Temperature)
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("ai.max_retries", d.AI.MaxRetries)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.key_prefix", d.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.memory.default_expiration", d.Storage.Memory.DefaultExpiration)
	v.SetDefault("storage.memory.cleanup_interval", d.Storage.Memory.CleanupInterval)
	v.SetDefault("object_store.type", d.ObjectStore.Type)
	v.SetDefault("object_store.region", d.ObjectStore.Region)
	v.SetDefault("object_store.prefix", d.ObjectStore.Prefix)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("memory.max_messages", d.Memory.MaxMessages)
	v.SetDefault("memory.min_frequency", d.Memory.MinFrequency)
	v.SetDefault("memory.retention", d.Memory.Retention)
	v.SetDefault("memory.sweep_schedule", d.Memory.SweepSchedule)
	v.SetDefault("memory.history_limit", d.Memory.HistoryLimit)
	v.SetDefault("learning.min_data_points", d.Learning.MinDataPoints)
	v.SetDefault("learning.min_seasonal_points", d.Learning.MinSeasonalPoints)
	v.SetDefault("learning.fetch_limit", d.Learning.FetchLimit)
	v.SetDefault("learning.fetch_timeout", d.Learning.FetchTimeout)
	v.SetDefault("learning.insight_threshold", d.Learning.InsightThreshold)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("monitoring.metrics.enabled", d.Monitoring.Metrics.Enabled)
	v.SetDefault("monitoring.metrics.port", d.Monitoring.Metrics.Port)
	v.SetDefault("monitoring.metrics.path", d.Monitoring.Metrics.Path)
	v.SetDefault("i18n.default_language", d.I18n.DefaultLanguage)
	v.SetDefault("i18n.languages", d.I18n.Languages)
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Enabled && cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required when the bot is enabled")
	}
	switch cfg.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported ai provider: %s", cfg.AI.Provider)
	}
	switch cfg.Storage.Type {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "postgres" && cfg.Storage.Postgres.URL == "" {
		return fmt.Errorf("postgres url is required for postgres storage")
	}
	switch cfg.ObjectStore.Type {
	case "memory", "s3":
	default:
		return fmt.Errorf("unsupported object store type: %s", cfg.ObjectStore.Type)
	}
	if cfg.ObjectStore.Type == "s3" && cfg.ObjectStore.Bucket == "" {
		return fmt.Errorf("bucket is required for s3 object store")
	}
	if cfg.Memory.MaxMessages <= 0 {
		return fmt.Errorf("memory.max_messages must be positive")
	}
	if cfg.Memory.MinFrequency <= 0 {
		return fmt.Errorf("memory.min_frequency must be positive")
	}
	if cfg.Memory.Retention <= 0 {
		return fmt.Errorf("memory.retention must be positive")
	}
	return nil
}
