package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/config"
)

// Config holds all configuration for the frontend session service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Remote SportyPredict API
	AuthAPIBaseURL    string `env:"AUTH_API_BASE_URL" envDefault:"https://api.sportypredict.com/api/v1"`
	ContentAPIBaseURL string `env:"CONTENT_API_BASE_URL" envDefault:"https://api.sportypredict.com/api/v1"`

	// Redis session store. An empty address keeps the session in memory.
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:""`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	SessionKey    string        `env:"SESSION_REDIS_KEY" envDefault:"sportypredict:session"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// Kafka. No brokers disables event broadcasting.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"" envSeparator:","`

	// Session manager cadences
	TokenRefreshLead time.Duration `env:"TOKEN_REFRESH_LEAD" envDefault:"60s"`
	VipPollInterval  time.Duration `env:"VIP_POLL_INTERVAL" envDefault:"15s"`
	UserPollInterval time.Duration `env:"USER_POLL_INTERVAL" envDefault:"30s"`

	// Tracing
	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if !strings.HasPrefix(cfg.AuthAPIBaseURL, "http") {
		return nil, fmt.Errorf("invalid AUTH_API_BASE_URL: %q", cfg.AuthAPIBaseURL)
	}
	if !strings.HasPrefix(cfg.ContentAPIBaseURL, "http") {
		return nil, fmt.Errorf("invalid CONTENT_API_BASE_URL: %q", cfg.ContentAPIBaseURL)
	}
	if cfg.TokenRefreshLead <= 0 || cfg.VipPollInterval <= 0 || cfg.UserPollInterval <= 0 {
		return nil, fmt.Errorf("session cadences must be positive")
	}
	return cfg, nil
}

// KafkaEnabled reports whether any broker was configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaBrokers[0] != ""
}

// RedisEnabled reports whether a Redis session store was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
