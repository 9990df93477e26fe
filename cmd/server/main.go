// Package main implements the taskflow server: an HTTP API in front of the
// task dispatch pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/platform/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	migrate := flag.String("migrate", "", "run a migration command (up, down, status, version, reset) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *migrate); err != nil {
		log.Fatalf("taskflow server: %v", err)
	}
}

// run loads configuration, sets up logging and either executes a migration
// command or serves until ctx is cancelled.
func run(ctx context.Context, configPath, migrateCmd string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, logCloser, err := logger.Setup(cfg.Server, cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(appLogger)

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"broker_driver", cfg.Broker.Driver,
		"consumer_mode", cfg.Consumer.Mode)
	if cfg.Database.URL != "" {
		appLogger.Debug("database configuration", "url_present", true)
	}
	if cfg.Auth.JWTSecret != "" {
		appLogger.Debug("auth configuration", "jwt_secret_present", true)
	}

	if migrateCmd != "" {
		return runMigration(ctx, cfg, migrateCmd, appLogger)
	}

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func runMigration(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("migration %s: database.url is not configured", command)
	}
	db, err := postgres.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, command, logger); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "migration %s completed\n", command)
	return nil
}
