// Package brokers opens the broker.Broker driver selected by configuration.
package brokers

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/broker/memory"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/platform/pebblestore"
	"github.com/phrazzld/taskflow/internal/platform/postgres"
)

// ErrDatabaseRequired is returned when the postgres driver is selected
// without a database connection.
var ErrDatabaseRequired = errors.New("postgres broker driver requires a database connection")

// Open returns the driver named by cfg.Driver. db is only used by the
// postgres driver and stays owned by the caller.
func Open(cfg config.BrokerConfig, db *sql.DB, logger *slog.Logger) (broker.Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory broker; messages do not survive a restart")
		return memory.New(memory.Options{VisibilityTimeout: cfg.VisibilityTimeout()}), nil

	case config.DriverPostgres:
		if db == nil {
			return nil, ErrDatabaseRequired
		}
		return postgres.NewBroker(db, postgres.BrokerOptions{
			VisibilityTimeout: cfg.VisibilityTimeout(),
			PollInterval:      cfg.PollInterval(),
		}, logger), nil

	case config.DriverPebble:
		b, err := pebblestore.Open(pebblestore.Options{
			DataDir:           cfg.DataDir,
			VisibilityTimeout: cfg.VisibilityTimeout(),
			PollInterval:      cfg.PollInterval(),
			Sync:              true,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble broker: %w", err)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}
