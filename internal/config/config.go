package config

import "time"

// Broker drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

// Consumption modes
const (
	ModePull = "pull"
	ModePush = "push"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Broker   BrokerConfig   `mapstructure:"broker" validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// ShutdownTimeout returns the graceful shutdown bound.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LogConfig controls optional file output. When File is empty logs go to stdout.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig contains all database-related configuration settings.
// The URL is optional unless the postgres broker driver is selected; without
// it task records are kept in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// BrokerConfig selects and tunes the message broker.
type BrokerConfig struct {
	Driver                   string `mapstructure:"driver" validate:"required,oneof=memory postgres pebble"`
	TaskChannel              string `mapstructure:"task_channel" validate:"required"`
	CompletionChannel        string `mapstructure:"completion_channel" validate:"required,nefield=TaskChannel"`
	ReceiveMaxWaitSeconds    int    `mapstructure:"receive_max_wait_seconds" validate:"gt=0"`
	VisibilityTimeoutSeconds int    `mapstructure:"visibility_timeout_seconds" validate:"gt=0"`
	DataDir                  string `mapstructure:"data_dir"`
	PollIntervalMS           int    `mapstructure:"poll_interval_ms" validate:"gt=0"`
}

// ReceiveMaxWait is the default bound for a batch receive.
func (b BrokerConfig) ReceiveMaxWait() time.Duration {
	return time.Duration(b.ReceiveMaxWaitSeconds) * time.Second
}

// VisibilityTimeout is how long a received message stays hidden.
func (b BrokerConfig) VisibilityTimeout() time.Duration {
	return time.Duration(b.VisibilityTimeoutSeconds) * time.Second
}

// PollInterval is how often polling drivers re-check an empty channel.
func (b BrokerConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalMS) * time.Millisecond
}

// RetryConfig bounds retries of transient broker failures.
type RetryConfig struct {
	MaxRetries  int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BaseDelayMS int `mapstructure:"base_delay_ms" validate:"gt=0"`
}

// BaseDelay returns the backoff base as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// ConsumerConfig selects how the task channel is consumed. BufferSize holds
// leased deliveries waiting for the push handler and may not exceed
// PrefetchCount.
type ConsumerConfig struct {
	Mode          string `mapstructure:"mode" validate:"required,oneof=pull push"`
	BufferSize    int    `mapstructure:"buffer_size" validate:"gt=0,ltefield=PrefetchCount"`
	PrefetchCount int    `mapstructure:"prefetch_count" validate:"gt=0"`
}

// AuthConfig contains all authentication and authorization settings.
// An empty secret disables bearer-token authentication.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}
