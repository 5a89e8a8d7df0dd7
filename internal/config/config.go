package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Event formats the container can be fronted by
const (
	EventFormatREST = "rest" // API Gateway REST API proxy events (payload v1)
	EventFormatHTTP = "http" // API Gateway HTTP API events (payload v2)
)

// Config holds all configuration for the container and its sample application
type Config struct {
	Environment string `validate:"required,oneof=development staging production test"`
	Port        string `validate:"required,numeric"`
	Log         LogConfig
	Container   ContainerConfig
	Auth        AuthConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `validate:"required,oneof=trace debug info warn error"`
	Format string `validate:"required,oneof=json text"`
}

// ContainerConfig holds invocation bridge configuration
type ContainerConfig struct {
	EventFormat        string        `validate:"required,oneof=rest http"`
	StripBasePath      string        `validate:"omitempty,startswith=/"`
	ResponseTimeout    time.Duration `validate:"gte=0"`
	DeadlineMargin     time.Duration `validate:"gte=0"`
	BinaryContentTypes []string
	// EagerBootstrap starts the application during the Lambda init phase
	// instead of on the first invocation
	EagerBootstrap bool
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret string
}

// CORSConfig holds cross-origin configuration
type CORSConfig struct {
	AllowedOrigins []string `validate:"required,min=1"`
	AllowedMethods []string `validate:"required,min=1"`
	AllowedHeaders []string `validate:"required,min=1"`
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64 `validate:"gte=0"`
	Burst             int     `validate:"gte=0"`
}

var validate = validator.New()

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8081")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("CONTAINER_EVENT_FORMAT", EventFormatREST)
	v.SetDefault("CONTAINER_RESPONSE_TIMEOUT", "0s")
	v.SetDefault("CONTAINER_DEADLINE_MARGIN", "50ms")
	v.SetDefault("CONTAINER_EAGER_BOOTSTRAP", true)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	v.SetDefault("CORS_ALLOWED_HEADERS", "Origin,Content-Type,Accept,Authorization,X-Request-ID")
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	config := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Port:        v.GetString("PORT"),
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Container: ContainerConfig{
			EventFormat:        strings.ToLower(v.GetString("CONTAINER_EVENT_FORMAT")),
			StripBasePath:      v.GetString("CONTAINER_STRIP_BASE_PATH"),
			ResponseTimeout:    v.GetDuration("CONTAINER_RESPONSE_TIMEOUT"),
			DeadlineMargin:     v.GetDuration("CONTAINER_DEADLINE_MARGIN"),
			BinaryContentTypes: splitList(v.GetString("BINARY_CONTENT_TYPES")),
			EagerBootstrap:     v.GetBool("CONTAINER_EAGER_BOOTSTRAP"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			AllowedMethods: splitList(v.GetString("CORS_ALLOWED_METHODS")),
			AllowedHeaders: splitList(v.GetString("CORS_ALLOWED_HEADERS")),
		},
		RateLimit: RateLimitConfig{
			Enabled:           v.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             v.GetInt("RATE_LIMIT_BURST"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction returns true for the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// splitList parses a comma separated variable, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
