package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TASKFLOW_SERVER_PORT.
const EnvPrefix = "TASKFLOW"

// Defaults
const (
	DefaultPort                  = 8080
	DefaultLogLevel              = "info"
	DefaultReceiveMaxWaitSeconds = 5
	DefaultTaskChannel           = "tasks"
	DefaultCompletionChannel     = "task-completion-events"
	DefaultTokenLifetimeMinutes  = 60
)

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from config files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is like Load but reads the named config file instead of searching
// for config.yaml. An empty path searches the working directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// An absent or unparsable wait falls back to the default rather than failing.
	wait, err := cast.ToIntE(v.Get("broker.receive_max_wait_seconds"))
	if err != nil || wait <= 0 {
		wait = DefaultReceiveMaxWaitSeconds
	}
	v.Set("broker.receive_max_wait_seconds", wait)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.log_level", DefaultLogLevel)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("database.url", "")

	v.SetDefault("broker.driver", DriverMemory)
	v.SetDefault("broker.task_channel", DefaultTaskChannel)
	v.SetDefault("broker.completion_channel", DefaultCompletionChannel)
	v.SetDefault("broker.receive_max_wait_seconds", DefaultReceiveMaxWaitSeconds)
	v.SetDefault("broker.visibility_timeout_seconds", 30)
	v.SetDefault("broker.data_dir", "./data/broker")
	v.SetDefault("broker.poll_interval_ms", 250)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_ms", 1000)

	v.SetDefault("consumer.mode", ModePull)
	v.SetDefault("consumer.buffer_size", 10)
	v.SetDefault("consumer.prefetch_count", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", DefaultTokenLifetimeMinutes)
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Broker.Driver == DriverPostgres && cfg.Database.URL == "" {
		return errors.New("config validation failed: database.url is required for the postgres broker driver")
	}
	if cfg.Broker.Driver == DriverPebble && strings.TrimSpace(cfg.Broker.DataDir) == "" {
		return errors.New("config validation failed: broker.data_dir is required for the pebble broker driver")
	}
	return nil
}
