package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	// Empty secret disables operator authentication.
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// StorageConfig.Dir holds package source archives. Attachments are only
// ever read from inside it.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type WebhooksConfig struct {
	WorkerCount    int           `mapstructure:"worker_count"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RateLimitConfig budgets are per client IP. Zero disables a budget.
type RateLimitConfig struct {
	ReadPerMinute  int `mapstructure:"read_per_minute"`
	WritePerMinute int `mapstructure:"write_per_minute"`
	Burst          int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.url", "file:data/ontohub.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("jwt.access_token_ttl", "24h")

	v.SetDefault("storage.dir", "data/packages")

	v.SetDefault("webhooks.worker_count", 8)
	v.SetDefault("webhooks.queue_size", 256)
	v.SetDefault("webhooks.max_attempts", 3)
	v.SetDefault("webhooks.initial_backoff", "1s")
	v.SetDefault("webhooks.connect_timeout", "5s")
	v.SetDefault("webhooks.request_timeout", "30s")
	v.SetDefault("webhooks.user_agent", "OntoHub-Webhook/2.1")

	v.SetDefault("rate_limit.read_per_minute", 1000)
	v.SetDefault("rate_limit.write_per_minute", 100)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at path and applies environment overrides
// (SERVER_PORT, WEBHOOKS_MAX_ATTEMPTS, ...). An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
