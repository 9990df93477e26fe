package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/broker/memory"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/retry"
)

const (
	taskChannel       = "tasks"
	completionChannel = "task-completion-events"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// retryCounter records retry callbacks.
type retryCounter struct {
	mu    sync.Mutex
	count int
}

func (r *retryCounter) onRetry(int, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func (r *retryCounter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func testOptions(retries *retryCounter) Options {
	var onRetry retry.OnRetryFunc
	if retries != nil {
		onRetry = retries.onRetry
	}
	return Options{
		Retry:  retry.NewPolicy(retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond}, broker.IsTransient, onRetry),
		Logger: discardLogger(),
		Now:    func() time.Time { return fixedNow },
	}
}

func transientErr(op string) error {
	return broker.NewError(op, taskChannel, broker.ReasonServiceTimeout, nil)
}

func permanentErr(op string) error {
	return broker.NewError(op, taskChannel, broker.ReasonUnauthorized, nil)
}

// fakeBroker wraps the in-memory broker and injects failures. Each error
// queue is consumed front to back; an empty queue delegates to memory.
type fakeBroker struct {
	*memory.Broker

	mu           sync.Mutex
	sendErrs     []error
	receiveErrs  []error
	completeErrs []error
	sendCalls    int
	sent         []broker.Message
	openedRecv   int
	closedRecv   int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{Broker: memory.New(memory.Options{})}
}

func (f *fakeBroker) CreateSender(channel string) (broker.Sender, error) {
	inner, err := f.Broker.CreateSender(channel)
	if err != nil {
		return nil, err
	}
	return &fakeSender{Sender: inner, broker: f}, nil
}

func (f *fakeBroker) CreateReceiver(channel string) (broker.Receiver, error) {
	inner, err := f.Broker.CreateReceiver(channel)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.openedRecv++
	f.mu.Unlock()
	return &fakeReceiver{Receiver: inner, broker: f}, nil
}

func (f *fakeBroker) CreateProcessor(channel string, opts broker.ProcessorOptions) (broker.Processor, error) {
	r, err := f.CreateReceiver(channel)
	if err != nil {
		return nil, err
	}
	return broker.NewPollingProcessor(r, opts), nil
}

func (f *fakeBroker) pop(queue *[]error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (f *fakeBroker) SendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func (f *fakeBroker) Sent() []broker.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.Message(nil), f.sent...)
}

func (f *fakeBroker) Receivers() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openedRecv, f.closedRecv
}

type fakeSender struct {
	broker.Sender
	broker *fakeBroker
}

func (s *fakeSender) Send(ctx context.Context, msg broker.Message) error {
	s.broker.mu.Lock()
	s.broker.sendCalls++
	s.broker.mu.Unlock()
	if err := s.broker.pop(&s.broker.sendErrs); err != nil {
		return err
	}
	if err := s.Sender.Send(ctx, msg); err != nil {
		return err
	}
	s.broker.mu.Lock()
	s.broker.sent = append(s.broker.sent, msg)
	s.broker.mu.Unlock()
	return nil
}

type fakeReceiver struct {
	broker.Receiver
	broker *fakeBroker
}

func (r *fakeReceiver) Receive(ctx context.Context, maxCount int, maxWait time.Duration) ([]broker.ReceivedMessage, error) {
	if err := r.broker.pop(&r.broker.receiveErrs); err != nil {
		return nil, err
	}
	return r.Receiver.Receive(ctx, maxCount, maxWait)
}

func (r *fakeReceiver) Complete(ctx context.Context, handle broker.Handle) error {
	if err := r.broker.pop(&r.broker.completeErrs); err != nil {
		return err
	}
	return r.Receiver.Complete(ctx, handle)
}

func (r *fakeReceiver) Close() error {
	r.broker.mu.Lock()
	r.broker.closedRecv++
	r.broker.mu.Unlock()
	return r.Receiver.Close()
}

// recordingCompletions captures completion events, failing with err when set.
type recordingCompletions struct {
	mu     sync.Mutex
	err    error
	events []domain.CompletionEvent
}

func (r *recordingCompletions) Send(_ context.Context, event domain.CompletionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingCompletions) Events() []domain.CompletionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CompletionEvent(nil), r.events...)
}
