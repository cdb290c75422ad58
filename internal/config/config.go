package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"     validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" validate:"required"`
	Breaker   BreakerConfig   `mapstructure:"breaker"   validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// DatabaseConfig contains Postgres settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains settings for the shared key-value store backing the
// rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"   validate:"gte=0"`
}

// AuthConfig contains token issuance settings.
type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"        validate:"required,min=32"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"  validate:"required"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" validate:"required"`
	BcryptCost      int           `mapstructure:"bcrypt_cost"       validate:"gte=4,lte=31"`
}

// RateLimitConfig carries the per-route policies applied by the HTTP layer.
// Auth endpoints get a tighter budget than the general API.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	APILimit  int           `mapstructure:"api_limit"  validate:"required,gt=0"`
	APIWindow time.Duration `mapstructure:"api_window" validate:"required"`

	AuthLimit  int           `mapstructure:"auth_limit"  validate:"required,gt=0"`
	AuthWindow time.Duration `mapstructure:"auth_window" validate:"required"`
}

// BreakerConfig carries the circuit breaker defaults for outbound
// dependencies.
type BreakerConfig struct {
	FailureThreshold     int           `mapstructure:"failure_threshold"      validate:"required,gt=0"`
	RecoveryTimeout      time.Duration `mapstructure:"recovery_timeout"       validate:"required"`
	ExpectedResponseTime time.Duration `mapstructure:"expected_response_time" validate:"required"`
	MonitoringWindow     time.Duration `mapstructure:"monitoring_window"      validate:"required"`
}

// WorkerConfig contains background worker and reminder scheduler settings.
type WorkerConfig struct {
	Count     int `mapstructure:"count"      validate:"required,gt=0"`
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// WebhookURL is the endpoint notified of task status changes and due
	// reminders. Empty disables outbound notification.
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`

	// ReminderSchedule is a cron spec for the due-date scan.
	ReminderSchedule string `mapstructure:"reminder_schedule" validate:"required"`

	// ReminderLookahead is how far ahead of now the due-date scan looks.
	ReminderLookahead time.Duration `mapstructure:"reminder_lookahead" validate:"required"`
}
