// Package cli contains the cobra commands of taskctl, an operator tool that
// drives the dispatch pipeline directly against a shared broker.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/dispatch"
	"github.com/phrazzld/taskflow/internal/platform/brokers"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/platform/postgres"
	"github.com/phrazzld/taskflow/internal/retry"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// ErrMemoryDriver is returned when a broker-backed command is run with the
// in-memory driver, which is not shared between processes.
var ErrMemoryDriver = errors.New("the memory broker driver cannot be shared with other processes; use postgres or pebble")

// NewRoot constructs the taskctl root command with every subcommand registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Operate the taskflow dispatch pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to a config file (default: ./config.yaml if present)")
	root.PersistentFlags().String("driver", "", "Broker driver override (postgres or pebble)")
	root.PersistentFlags().String("data-dir", "", "Pebble data directory override")
	root.PersistentFlags().String("database-url", "", "PostgreSQL URL override")
	root.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		newSendCommand(),
		newReceiveCommand(),
		newEventsCommand(),
		newConsumeCommand(),
		newTokenCommand(),
	)
	return root
}

// env holds what a broker-backed command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	broker broker.Broker
	opts   dispatch.Options
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		cfg.Broker.Driver = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Broker.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		cfg.Database.URL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Server.LogLevel = v
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, ok := logger.ParseLevel(cfg.Server.LogLevel)
	if !ok {
		level = slog.LevelInfo
	}
	// stdout carries command output
	return logger.New(os.Stderr, level)
}

// withEnv opens the configured broker, runs fn and releases everything.
func withEnv(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Broker.Driver == config.DriverMemory {
		return ErrMemoryDriver
	}
	log := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var db *sql.DB
	if cfg.Broker.Driver == config.DriverPostgres {
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for the postgres broker driver")
		}
		db, err = postgres.Open(ctx, cfg.Database.URL, log)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()
	}

	b, err := brokers.Open(cfg.Broker, db, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, b.Close()) }()

	e := &env{
		cfg:    cfg,
		logger: log,
		broker: b,
		opts: dispatch.Options{
			Retry: retry.NewPolicy(retry.Config{
				MaxRetries: cfg.Retry.MaxRetries,
				BaseDelay:  cfg.Retry.BaseDelay(),
			}, broker.IsTransient, dispatch.LogRetry(log)),
			Logger:         log,
			ReceiveMaxWait: cfg.Broker.ReceiveMaxWait(),
		},
	}
	if err := fn(ctx, e); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return nil
}
