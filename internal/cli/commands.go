package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/dispatch"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/service/auth"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// printJSON writes v as one JSON line.
func printJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

// newSendCommand constructs the `send` subcommand.
func newSendCommand() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send a task message to the task channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetInt("id")
			name, _ := cmd.Flags().GetString("name")
			description, _ := cmd.Flags().GetString("description")
			assignedTo, _ := cmd.Flags().GetString("assigned-to")
			statusName, _ := cmd.Flags().GetString("status")

			status, err := domain.ParseTaskStatus(statusName)
			if err != nil {
				return err
			}
			task := domain.TaskMessage{
				ID:          id,
				Name:        name,
				Description: domain.StringPtr(description),
				Status:      status,
				AssignedTo:  domain.StringPtr(assignedTo),
			}

			return withEnv(cmd, func(ctx context.Context, e *env) (err error) {
				producer, err := dispatch.NewTaskProducer(e.broker, e.cfg.Broker.TaskChannel, e.opts)
				if err != nil {
					return err
				}
				defer func() { err = multierr.Append(err, producer.Close()) }()

				if err := producer.Send(ctx, task); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), task)
			})
		},
	}
	sendCmd.Flags().Int("id", 0, "Task ID")
	sendCmd.Flags().String("name", "", "Task name")
	sendCmd.Flags().String("description", "", "Task description")
	sendCmd.Flags().String("assigned-to", "", "Assignee")
	sendCmd.Flags().String("status", domain.TaskStatusNotStarted.String(), "Task status")
	_ = sendCmd.MarkFlagRequired("name")
	return sendCmd
}

// newReceiveCommand constructs the `receive` subcommand.
func newReceiveCommand() *cobra.Command {
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive a batch of tasks and emit their completion events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			count, _ := cmd.Flags().GetInt("count")
			wait, _ := cmd.Flags().GetDuration("wait")

			return withEnv(cmd, func(ctx context.Context, e *env) (err error) {
				completions, err := dispatch.NewCompletionEventProducer(e.broker, e.cfg.Broker.CompletionChannel, e.opts)
				if err != nil {
					return err
				}
				defer func() { err = multierr.Append(err, completions.Close()) }()

				consumer, err := dispatch.NewPullConsumer(e.broker, e.cfg.Broker.TaskChannel, completions, e.opts)
				if err != nil {
					return err
				}
				defer func() { err = multierr.Append(err, consumer.Close()) }()

				tasks, recvErr := consumer.ReceiveBatch(ctx, count, wait)
				for _, task := range tasks {
					if err := printJSON(cmd.OutOrStdout(), task); err != nil {
						return err
					}
				}
				return recvErr
			})
		},
	}
	receiveCmd.Flags().Int("count", 1, "Maximum number of tasks")
	receiveCmd.Flags().Duration("wait", 0, "Maximum wait (default: broker.receive_max_wait_seconds)")
	return receiveCmd
}

// newEventsCommand constructs the `events` subcommand.
func newEventsCommand() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Receive a batch of completion events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			count, _ := cmd.Flags().GetInt("count")
			wait, _ := cmd.Flags().GetDuration("wait")

			return withEnv(cmd, func(ctx context.Context, e *env) (err error) {
				consumer, err := dispatch.NewCompletionEventConsumer(e.broker, e.cfg.Broker.CompletionChannel, e.opts)
				if err != nil {
					return err
				}
				defer func() { err = multierr.Append(err, consumer.Close()) }()

				events, recvErr := consumer.ReceiveBatch(ctx, count, wait)
				for _, event := range events {
					if err := printJSON(cmd.OutOrStdout(), event); err != nil {
						return err
					}
				}
				return recvErr
			})
		},
	}
	eventsCmd.Flags().Int("count", 1, "Maximum number of events")
	eventsCmd.Flags().Duration("wait", 0, "Maximum wait (default: broker.receive_max_wait_seconds)")
	return eventsCmd
}

// newConsumeCommand constructs the `consume` subcommand, which runs a push
// consumer that prints every task until interrupted or --max is reached.
func newConsumeCommand() *cobra.Command {
	consumeCmd := &cobra.Command{
		Use:   "consume",
		Short: "Continuously consume tasks, printing each one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxTasks, _ := cmd.Flags().GetUint64("max")
			prefetch, _ := cmd.Flags().GetInt("prefetch")
			noEvents, _ := cmd.Flags().GetBool("no-events")

			return withEnv(cmd, func(ctx context.Context, e *env) (err error) {
				var completions dispatch.CompletionSender
				if !noEvents {
					producer, perr := dispatch.NewCompletionEventProducer(e.broker, e.cfg.Broker.CompletionChannel, e.opts)
					if perr != nil {
						return perr
					}
					defer func() { err = multierr.Append(err, producer.Close()) }()
					completions = producer
				}

				consumer, err := dispatch.NewPushConsumer(e.broker, e.cfg.Broker.TaskChannel, completions,
					dispatch.PushOptions{
						Options:    e.opts,
						BufferSize: e.cfg.Consumer.BufferSize,
						Processor: broker.ProcessorOptions{
							PrefetchCount: prefetch,
							MaxWait:       e.cfg.Broker.ReceiveMaxWait(),
						},
					})
				if err != nil {
					return err
				}

				runCtx, cancel := context.WithCancel(ctx)
				defer cancel()

				var seen atomic.Uint64
				out := cmd.OutOrStdout()
				handler := func(ctx context.Context, task domain.TaskMessage) error {
					// deliveries buffered past --max stay unacknowledged
					if err := runCtx.Err(); err != nil {
						return err
					}
					if err := printJSON(out, task); err != nil {
						return err
					}
					if maxTasks > 0 && seen.Add(1) >= maxTasks {
						cancel()
					}
					return nil
				}
				if err := consumer.Start(runCtx, handler); err != nil {
					return err
				}

				<-runCtx.Done()
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer stopCancel()
				if err := consumer.Stop(stopCtx); err != nil {
					return err
				}
				e.logger.Info("consumer stopped",
					"handled", consumer.Handled(),
					"failed", consumer.Failed())
				return nil
			})
		},
	}
	consumeCmd.Flags().Uint64("max", 0, "Stop after this many tasks (0 runs until interrupted)")
	consumeCmd.Flags().Int("prefetch", broker.DefaultPrefetchCount, "Messages requested per broker receive")
	consumeCmd.Flags().Bool("no-events", false, "Do not publish completion events")
	return consumeCmd
}

// newTokenCommand constructs the `token` subcommand, which issues an API
// bearer token signed with auth.jwt_secret.
func newTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := jwtService.GenerateToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	tokenCmd.Flags().String("subject", "operator", "Token subject")
	return tokenCmd
}
