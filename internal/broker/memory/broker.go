// Package memory provides an in-process broker.Broker with visibility
// timeouts and redelivery. It backs single-process deployments and tests;
// messages do not survive a restart.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow/internal/broker"
)

// DefaultVisibilityTimeout is how long a received message stays hidden from
// other receivers before it is redelivered.
const DefaultVisibilityTimeout = 30 * time.Second

// Options configures the in-memory broker.
type Options struct {
	// VisibilityTimeout is the lease granted to each delivery.
	// If zero or negative, defaults to DefaultVisibilityTimeout.
	VisibilityTimeout time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Broker is an in-memory implementation of broker.Broker.
type Broker struct {
	visibility time.Duration
	now        func() time.Time

	mu       sync.Mutex
	channels map[string]*queue
	closed   bool
	done     chan struct{}
}

type queue struct {
	entries []*entry
	lastSeq uint64
	// notify is closed and replaced whenever a message becomes available
	notify chan struct{}
}

type entry struct {
	seq        uint64
	msg        broker.Message
	enqueuedAt time.Time
	visibleAt  time.Time
	lockToken  string
	deliveries int
}

// Ensure Broker implements broker.Broker
var _ broker.Broker = (*Broker)(nil)

// New creates an empty in-memory broker.
func New(opts Options) *Broker {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broker{
		visibility: opts.VisibilityTimeout,
		now:        opts.Now,
		channels:   make(map[string]*queue),
		done:       make(chan struct{}),
	}
}

// CreateSender implements broker.Broker.
func (b *Broker) CreateSender(channel string) (broker.Sender, error) {
	if err := b.checkChannel("create sender", channel); err != nil {
		return nil, err
	}
	return &sender{broker: b, channel: channel}, nil
}

// CreateReceiver implements broker.Broker.
func (b *Broker) CreateReceiver(channel string) (broker.Receiver, error) {
	if err := b.checkChannel("create receiver", channel); err != nil {
		return nil, err
	}
	return &receiver{broker: b, channel: channel}, nil
}

// CreateProcessor implements broker.Broker.
func (b *Broker) CreateProcessor(channel string, opts broker.ProcessorOptions) (broker.Processor, error) {
	r, err := b.CreateReceiver(channel)
	if err != nil {
		return nil, err
	}
	return broker.NewPollingProcessor(r, opts), nil
}

// Close implements broker.Broker. Blocked receivers return immediately.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

// Depth returns the number of messages held by channel, visible or leased.
func (b *Broker) Depth(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.channels[channel]; ok {
		return len(q.entries)
	}
	return 0
}

func (b *Broker) checkChannel(op, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return broker.NewError(op, channel, broker.ReasonEntityNotFound, broker.ErrInvalidChannel)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.NewError(op, channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return nil
}

// queueLocked returns the queue for channel, creating it on first use.
// Callers must hold b.mu.
func (b *Broker) queueLocked(channel string) *queue {
	q, ok := b.channels[channel]
	if !ok {
		q = &queue{notify: make(chan struct{})}
		b.channels[channel] = q
	}
	return q
}

func (b *Broker) publish(channel string, msg broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.NewError("send", channel, broker.ReasonClosed, broker.ErrClosed)
	}

	q := b.queueLocked(channel)
	q.lastSeq++
	now := b.now()
	body := append([]byte(nil), msg.Body...)
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Body = body
	q.entries = append(q.entries, &entry{
		seq:        q.lastSeq,
		msg:        msg,
		enqueuedAt: now,
		visibleAt:  now,
	})

	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

// lease hands out up to maxCount visible messages. When none are visible it
// returns the channel to wait on and the earliest time a leased message
// becomes visible again (zero if none).
func (b *Broker) lease(channel string, maxCount int) ([]broker.ReceivedMessage, <-chan struct{}, time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, time.Time{}, broker.NewError("receive", channel, broker.ReasonClosed, broker.ErrClosed)
	}

	q := b.queueLocked(channel)
	now := b.now()
	var (
		out      []broker.ReceivedMessage
		nextWake time.Time
	)
	for _, e := range q.entries {
		if len(out) >= maxCount {
			break
		}
		if e.visibleAt.After(now) {
			if nextWake.IsZero() || e.visibleAt.Before(nextWake) {
				nextWake = e.visibleAt
			}
			continue
		}
		e.lockToken = uuid.NewString()
		e.visibleAt = now.Add(b.visibility)
		e.deliveries++
		out = append(out, broker.ReceivedMessage{
			Handle:        encodeHandle(e.seq, e.lockToken),
			ID:            e.msg.ID,
			Body:          append([]byte(nil), e.msg.Body...),
			DeliveryCount: e.deliveries,
			EnqueuedAt:    e.enqueuedAt,
		})
	}
	return out, q.notify, nextWake, nil
}

func (b *Broker) complete(channel string, handle broker.Handle) error {
	seq, token, ok := decodeHandle(handle)
	if !ok {
		return broker.NewError("complete", channel, broker.ReasonLockLost,
			fmt.Errorf("%w: malformed handle %q", broker.ErrLockLost, handle))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.NewError("complete", channel, broker.ReasonClosed, broker.ErrClosed)
	}

	q := b.queueLocked(channel)
	now := b.now()
	for i, e := range q.entries {
		if e.seq != seq {
			continue
		}
		if e.lockToken != token || !e.visibleAt.After(now) {
			break
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return nil
	}
	return broker.NewError("complete", channel, broker.ReasonLockLost, broker.ErrLockLost)
}

func encodeHandle(seq uint64, token string) broker.Handle {
	return broker.Handle(strconv.FormatUint(seq, 10) + ":" + token)
}

func decodeHandle(h broker.Handle) (uint64, string, bool) {
	seqPart, token, found := strings.Cut(string(h), ":")
	if !found || token == "" {
		return 0, "", false
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return seq, token, true
}

type sender struct {
	broker  *Broker
	channel string

	mu     sync.Mutex
	closed bool
}

func (s *sender) Send(ctx context.Context, msg broker.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return broker.NewError("send", s.channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return s.broker.publish(s.channel, msg)
}

func (s *sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type receiver struct {
	broker  *Broker
	channel string

	mu     sync.Mutex
	closed bool
}

func (r *receiver) Receive(ctx context.Context, maxCount int, maxWait time.Duration) ([]broker.ReceivedMessage, error) {
	if maxCount <= 0 {
		return nil, nil
	}
	if r.IsClosed() {
		return nil, broker.NewError("receive", r.channel, broker.ReasonClosed, broker.ErrClosed)
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	for {
		msgs, notify, nextWake, err := r.broker.lease(r.channel, maxCount)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		var (
			wake      <-chan time.Time
			wakeTimer *time.Timer
		)
		if !nextWake.IsZero() {
			wakeTimer = time.NewTimer(nextWake.Sub(r.broker.now()))
			wake = wakeTimer.C
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-r.broker.done:
			return nil, broker.NewError("receive", r.channel, broker.ReasonClosed, broker.ErrClosed)
		case <-notify:
		case <-wake:
		}
		if wakeTimer != nil {
			wakeTimer.Stop()
		}
	}
}

func (r *receiver) Complete(ctx context.Context, handle broker.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.broker.complete(r.channel, handle)
}

func (r *receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *receiver) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
