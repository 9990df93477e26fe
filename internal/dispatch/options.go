package dispatch

import (
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/events"
	"github.com/phrazzld/taskflow/internal/retry"
)

// DefaultReceiveMaxWait bounds a batch receive when the caller passes no wait.
const DefaultReceiveMaxWait = 5 * time.Second

// Options carries the collaborators shared by every dispatch component.
// Zero values are replaced with working defaults.
type Options struct {
	// Retry wraps broker calls. Defaults to three retries on broker.IsTransient.
	Retry *retry.Policy

	// Emitter receives observability events. Defaults to events.NopEmitter.
	Emitter events.EventEmitter

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// ReceiveMaxWait is used when ReceiveBatch is called with a non-positive wait.
	ReceiveMaxWait time.Duration

	// Now stamps completion events. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Retry == nil {
		logger := o.Logger
		o.Retry = retry.NewPolicy(retry.DefaultConfig(), broker.IsTransient, LogRetry(logger))
	}
	if o.Emitter == nil {
		o.Emitter = events.NopEmitter{}
	}
	if o.ReceiveMaxWait <= 0 {
		o.ReceiveMaxWait = DefaultReceiveMaxWait
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// LogRetry returns a retry callback that logs each retry as a warning.
func LogRetry(logger *slog.Logger) retry.OnRetryFunc {
	return func(attempt int, delay time.Duration, err error) {
		logger.Warn("transient broker error, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}
}

func checkChannel(channel string) error {
	if strings.TrimSpace(channel) == "" {
		return ErrInvalidChannel
	}
	return nil
}
