package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables (TASKLOOM_ prefix)
// and, when present, a config.yaml in the working directory or /etc/taskloom.
// Environment variables take precedence over file values. The result is
// validated before being returned.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TASKLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskloom")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the defaults applied before file and env lookup.
func setDefaults(v *viper.Viper) {
	// Keys without meaningful defaults still need to be registered so
	// AutomaticEnv can populate them during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("worker.webhook_url", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.api_limit", 100)
	v.SetDefault("ratelimit.api_window", "1m")
	v.SetDefault("ratelimit.auth_limit", 10)
	v.SetDefault("ratelimit.auth_window", "1m")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", "30s")
	v.SetDefault("breaker.expected_response_time", "5s")
	v.SetDefault("breaker.monitoring_window", "60s")

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.reminder_schedule", "@every 1m")
	v.SetDefault("worker.reminder_lookahead", "15m")
}
