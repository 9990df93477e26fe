// Package pebblestore provides a broker.Broker driver that persists channel
// messages in an embedded Pebble database. It serves single-process
// deployments that need messages to survive a restart without PostgreSQL.
package pebblestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/phrazzld/taskflow/internal/broker"
	"go.uber.org/multierr"
)

// Default driver settings
const (
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
)

// Options configures the Pebble broker driver.
type Options struct {
	// DataDir is the path to the Pebble database directory. Required.
	DataDir string

	// VisibilityTimeout is the lease granted to each delivery.
	VisibilityTimeout time.Duration

	// PollInterval bounds how long an idle receiver sleeps before rescanning.
	PollInterval time.Duration

	// Sync forces a WAL fsync on every committed write.
	Sync bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// record is the stored form of one channel message.
type record struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	EnqueuedMs  int64  `json:"enqueued_ms"`
	VisibleMs   int64  `json:"visible_ms"`
	LockToken   string `json:"lock_token,omitempty"`
	Deliveries  int    `json:"deliveries"`
}

// Broker implements broker.Broker on a Pebble database it owns.
type Broker struct {
	db         *pebble.DB
	logger     *slog.Logger
	visibility time.Duration
	poll       time.Duration
	writeOpts  *pebble.WriteOptions
	now        func() time.Time

	// mu serializes read-modify-write cycles on message records
	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	notifyMu sync.Mutex
	notify   chan struct{}
}

// Ensure Broker implements broker.Broker
var _ broker.Broker = (*Broker)(nil)

// Open creates or opens the Pebble database at opts.DataDir.
func Open(opts Options, logger *slog.Logger) (*Broker, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", opts.DataDir, err)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	log := logger.With(slog.String("component", "pebble_broker"))
	log.Info("pebble broker opened", slog.String("data_dir", opts.DataDir))

	return &Broker{
		db:         db,
		logger:     log,
		visibility: opts.VisibilityTimeout,
		poll:       opts.PollInterval,
		writeOpts:  writeOpts,
		now:        opts.Now,
		done:       make(chan struct{}),
		notify:     make(chan struct{}),
	}, nil
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

// Close implements broker.Broker. It flushes and closes the database.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)

	err := multierr.Append(b.db.Flush(), b.db.Close())
	if err != nil {
		b.logger.Error("failed to close pebble broker", slog.String("error", err.Error()))
	}
	return err
}

// Depth returns the number of messages stored for channel, visible or leased.
func (b *Broker) Depth(channel string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, broker.NewError("depth", channel, broker.ReasonClosed, broker.ErrClosed)
	}

	lo, hi := channelBounds(channel)
	it, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, b.wrap("depth", channel, err)
	}
	defer it.Close()

	n := 0
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	return n, nil
}

func (b *Broker) checkChannel(op, channel string) error {
	if strings.TrimSpace(channel) == "" || strings.ContainsRune(channel, 0) {
		return broker.NewError(op, channel, broker.ReasonEntityNotFound, broker.ErrInvalidChannel)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.NewError(op, channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// wrap classifies a storage failure. Pebble errors are local disk or
// corruption problems and are not retried.
func (b *Broker) wrap(op, channel string, err error) error {
	if errors.Is(err, pebble.ErrClosed) {
		return broker.NewError(op, channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return broker.NewError(op, channel, broker.ReasonUnknown, err)
}

func (b *Broker) signal() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	close(b.notify)
	b.notify = make(chan struct{})
}

func (b *Broker) waitChan() <-chan struct{} {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	return b.notify
}

func (b *Broker) publish(channel string, msg broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.NewError("send", channel, broker.ReasonClosed, broker.ErrClosed)
	}

	seq, err := b.nextSeqLocked(channel)
	if err != nil {
		return b.wrap("send", channel, err)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ContentType == "" {
		msg.ContentType = broker.ContentTypeJSON
	}
	nowMs := b.now().UnixMilli()
	data, err := json.Marshal(record{
		ID:          msg.ID,
		ContentType: msg.ContentType,
		Body:        msg.Body,
		EnqueuedMs:  nowMs,
		VisibleMs:   nowMs,
	})
	if err != nil {
		return broker.NewError("send", channel, broker.ReasonUnknown, fmt.Errorf("marshal record: %w", err))
	}

	batch := b.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(seqKey(channel), encodeUint64(seq), nil); err != nil {
		return b.wrap("send", channel, err)
	}
	if err := batch.Set(messageKey(channel, seq), data, nil); err != nil {
		return b.wrap("send", channel, err)
	}
	if err := batch.Commit(b.writeOpts); err != nil {
		return b.wrap("send", channel, err)
	}

	b.signal()
	return nil
}

// nextSeqLocked returns the next message sequence for channel.
// Callers must hold b.mu.
func (b *Broker) nextSeqLocked(channel string) (uint64, error) {
	val, closer, err := b.db.Get(seqKey(channel))
	if errors.Is(err, pebble.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt sequence for channel %q", channel)
	}
	return binary.BigEndian.Uint64(val) + 1, nil
}

// lease claims up to maxCount visible messages in sequence order.
// It also reports the earliest time a leased message becomes visible again.
func (b *Broker) lease(channel string, maxCount int) ([]broker.ReceivedMessage, time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, time.Time{}, broker.NewError("receive", channel, broker.ReasonClosed, broker.ErrClosed)
	}

	lo, hi := channelBounds(channel)
	it, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, time.Time{}, b.wrap("receive", channel, err)
	}
	defer it.Close()

	now := b.now()
	nowMs := now.UnixMilli()
	token := uuid.NewString()
	batch := b.db.NewBatch()
	defer batch.Close()

	var (
		out      []broker.ReceivedMessage
		nextWake int64
	)
	for it.First(); it.Valid() && len(out) < maxCount; it.Next() {
		var rec record
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			b.logger.Error("skipping unreadable message record",
				slog.String("channel", channel),
				slog.String("error", err.Error()))
			continue
		}
		if rec.VisibleMs > nowMs {
			if nextWake == 0 || rec.VisibleMs < nextWake {
				nextWake = rec.VisibleMs
			}
			continue
		}

		rec.LockToken = token
		rec.VisibleMs = now.Add(b.visibility).UnixMilli()
		rec.Deliveries++
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, time.Time{}, broker.NewError("receive", channel, broker.ReasonUnknown, err)
		}
		key := append([]byte(nil), it.Key()...)
		if err := batch.Set(key, data, nil); err != nil {
			return nil, time.Time{}, b.wrap("receive", channel, err)
		}

		out = append(out, broker.ReceivedMessage{
			Handle:        encodeHandle(seqFromKey(key), token),
			ID:            rec.ID,
			Body:          rec.Body,
			DeliveryCount: rec.Deliveries,
			EnqueuedAt:    time.UnixMilli(rec.EnqueuedMs).UTC(),
		})
	}
	if err := it.Error(); err != nil {
		return nil, time.Time{}, b.wrap("receive", channel, err)
	}
	if len(out) == 0 {
		var wake time.Time
		if nextWake > 0 {
			wake = time.UnixMilli(nextWake)
		}
		return nil, wake, nil
	}

	if err := batch.Commit(b.writeOpts); err != nil {
		return nil, time.Time{}, b.wrap("receive", channel, err)
	}
	return out, time.Time{}, nil
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

	key := messageKey(channel, seq)
	val, closer, err := b.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return broker.NewError("complete", channel, broker.ReasonLockLost, broker.ErrLockLost)
	}
	if err != nil {
		return b.wrap("complete", channel, err)
	}
	var rec record
	err = json.Unmarshal(val, &rec)
	_ = closer.Close()
	if err != nil {
		return broker.NewError("complete", channel, broker.ReasonUnknown, err)
	}

	if rec.LockToken != token || rec.VisibleMs <= b.now().UnixMilli() {
		return broker.NewError("complete", channel, broker.ReasonLockLost, broker.ErrLockLost)
	}
	if err := b.db.Delete(key, b.writeOpts); err != nil {
		return b.wrap("complete", channel, err)
	}
	return nil
}

// Key layout:
//
//	q/<channel>\x00<seq:8 BE>  message record (JSON)
//	s/<channel>                last assigned sequence
func messageKey(channel string, seq uint64) []byte {
	k := make([]byte, 0, 3+len(channel)+8)
	k = append(k, "q/"...)
	k = append(k, channel...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint64(k, seq)
}

func channelBounds(channel string) ([]byte, []byte) {
	lo := append([]byte("q/"+channel), 0)
	hi := append([]byte("q/"+channel), 1)
	return lo, hi
}

func seqKey(channel string) []byte {
	return []byte("s/" + channel)
}

func seqFromKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
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
		// take the wait channel before scanning so a concurrent send is not missed
		notify := r.broker.waitChan()
		msgs, nextWake, err := r.broker.lease(r.channel, maxCount)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		sleep := r.broker.poll
		if !nextWake.IsZero() {
			if untilWake := nextWake.Sub(r.broker.now()); untilWake < sleep {
				sleep = max(untilWake, time.Millisecond)
			}
		}
		pause := time.NewTimer(sleep)

		select {
		case <-ctx.Done():
			pause.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			pause.Stop()
			return nil, nil
		case <-r.broker.done:
			pause.Stop()
			return nil, broker.NewError("receive", r.channel, broker.ReasonClosed, broker.ErrClosed)
		case <-notify:
		case <-pause.C:
		}
		pause.Stop()
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
