package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/dispatch"
	"github.com/phrazzld/taskflow/internal/events"
	"github.com/phrazzld/taskflow/internal/platform/brokers"
	"github.com/phrazzld/taskflow/internal/platform/postgres"
	"github.com/phrazzld/taskflow/internal/retry"
	"github.com/phrazzld/taskflow/internal/service"
	"github.com/phrazzld/taskflow/internal/service/auth"
	"github.com/phrazzld/taskflow/internal/store"
	"go.uber.org/multierr"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db     *sql.DB
	broker broker.Broker

	taskStore store.TaskStore

	emitter            *events.AsyncEmitter
	producer           *dispatch.TaskProducer
	pullConsumer       *dispatch.PullConsumer
	pushConsumer       *dispatch.PushConsumer
	completionProducer *dispatch.CompletionEventProducer
	completionConsumer *dispatch.CompletionEventConsumer

	taskService service.TaskService
	jwtService  auth.JWTService
}

// newApplication creates a new application instance with all dependencies
// initialized. A configured database is migrated and used for task records;
// without one records live in memory. Partially built dependencies are
// released on failure.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}
	initialized := false
	defer func() {
		if !initialized {
			if cerr := app.close(context.Background()); cerr != nil {
				logger.Error("cleanup after failed initialization", "error", cerr)
			}
		}
	}()

	var err error

	if cfg.Database.URL != "" {
		app.db, err = postgres.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err = postgres.Migrate(ctx, app.db, "up", logger); err != nil {
			return nil, err
		}
		app.taskStore = postgres.NewPostgresTaskStore(app.db, logger)
	} else {
		logger.Warn("database.url not set; task records are kept in memory")
		app.taskStore = store.NewMemoryTaskStore()
	}

	app.broker, err = brokers.Open(cfg.Broker, app.db, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret != "" {
		app.jwtService, err = auth.NewJWTService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		logger.Info("bearer token authentication enabled",
			"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)
	}

	if err = app.setupDispatch(); err != nil {
		return nil, err
	}

	var receiver service.TaskReceiver
	if app.pullConsumer != nil {
		receiver = app.pullConsumer
	}
	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.producer,
		receiver,
		app.completionConsumer,
		service.Options{
			PushMode:       cfg.Consumer.Mode == config.ModePush,
			ReceiveMaxWait: cfg.Broker.ReceiveMaxWait(),
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	initialized = true
	logger.Info("application initialized successfully")
	return app, nil
}

// setupDispatch builds the producers and consumers around the broker. Exactly
// one of the pull and push consumers owns the task channel.
func (app *application) setupDispatch() error {
	cfg := app.config

	sink := events.NewInMemoryEventEmitter(app.logger)
	sink.RegisterHandler(events.NewLogHandler(app.logger))
	app.emitter = events.NewAsyncEmitter(sink, events.DefaultAsyncBufferSize, app.logger)

	opts := dispatch.Options{
		Retry: retry.NewPolicy(retry.Config{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
		}, broker.IsTransient, dispatch.LogRetry(app.logger)),
		Emitter:        app.emitter,
		Logger:         app.logger,
		ReceiveMaxWait: cfg.Broker.ReceiveMaxWait(),
	}

	var err error
	if app.producer, err = dispatch.NewTaskProducer(app.broker, cfg.Broker.TaskChannel, opts); err != nil {
		return fmt.Errorf("failed to create task producer: %w", err)
	}
	if app.completionProducer, err = dispatch.NewCompletionEventProducer(
		app.broker, cfg.Broker.CompletionChannel, opts); err != nil {
		return fmt.Errorf("failed to create completion event producer: %w", err)
	}
	if app.completionConsumer, err = dispatch.NewCompletionEventConsumer(
		app.broker, cfg.Broker.CompletionChannel, opts); err != nil {
		return fmt.Errorf("failed to create completion event consumer: %w", err)
	}

	if cfg.Consumer.Mode == config.ModePush {
		app.pushConsumer, err = dispatch.NewPushConsumer(app.broker, cfg.Broker.TaskChannel, app.completionProducer,
			dispatch.PushOptions{
				Options:    opts,
				BufferSize: cfg.Consumer.BufferSize,
				Processor: broker.ProcessorOptions{
					PrefetchCount: cfg.Consumer.PrefetchCount,
					MaxWait:       cfg.Broker.ReceiveMaxWait(),
				},
			})
		if err != nil {
			return fmt.Errorf("failed to create push consumer: %w", err)
		}
		return nil
	}

	app.pullConsumer, err = dispatch.NewPullConsumer(app.broker, cfg.Broker.TaskChannel, app.completionProducer, opts)
	if err != nil {
		return fmt.Errorf("failed to create pull consumer: %w", err)
	}
	return nil
}

// Run starts the push consumer when configured, serves HTTP until ctx is
// cancelled and then releases every resource.
func (app *application) Run(ctx context.Context) error {
	if app.pushConsumer != nil {
		if err := app.pushConsumer.Start(ctx, app.taskService.HandleTask); err != nil {
			return multierr.Append(fmt.Errorf("failed to start push consumer: %w", err), app.close(context.Background()))
		}
		app.logger.Info("push consumer started", "channel", app.config.Broker.TaskChannel)
	}

	err := app.startHTTPServer(ctx, app.setupRouter())
	if err != nil {
		err = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout())
	defer cancel()
	return multierr.Append(err, app.close(shutdownCtx))
}

// close stops consumption and releases resources in dependency order: the
// push consumer first, then dispatch clients, the broker, the event emitter
// and finally the database.
func (app *application) close(ctx context.Context) error {
	var err error
	if app.pushConsumer != nil {
		err = multierr.Append(err, app.pushConsumer.Stop(ctx))
	}
	if app.pullConsumer != nil {
		err = multierr.Append(err, app.pullConsumer.Close())
	}
	if app.completionConsumer != nil {
		err = multierr.Append(err, app.completionConsumer.Close())
	}
	if app.completionProducer != nil {
		err = multierr.Append(err, app.completionProducer.Close())
	}
	if app.producer != nil {
		err = multierr.Append(err, app.producer.Close())
	}
	if app.broker != nil {
		err = multierr.Append(err, app.broker.Close())
	}
	if app.emitter != nil {
		err = multierr.Append(err, app.emitter.Close(ctx))
	}
	if app.db != nil {
		err = multierr.Append(err, app.db.Close())
	}

	if err != nil {
		app.logger.Error("errors during shutdown", "error", err)
	} else {
		app.logger.Info("application resources released")
	}
	return err
}
