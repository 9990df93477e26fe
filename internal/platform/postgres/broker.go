package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow/internal/broker"
)

// Default broker driver settings
const (
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
)

// BrokerOptions configures the PostgreSQL broker driver.
type BrokerOptions struct {
	// VisibilityTimeout is the lease granted to each delivery.
	VisibilityTimeout time.Duration

	// PollInterval is the pause between lease attempts on an empty channel.
	PollInterval time.Duration
}

// Broker implements broker.Broker on the queue_messages table.
// The *sql.DB is owned by the caller and is not closed by Close.
type Broker struct {
	db         *sql.DB
	logger     *slog.Logger
	visibility time.Duration
	poll       time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Ensure Broker implements broker.Broker
var _ broker.Broker = (*Broker)(nil)

const insertMessageQuery = `
	INSERT INTO queue_messages (channel, message_id, content_type, body)
	VALUES ($1, $2, $3, $4)
`

const leaseMessagesQuery = `
	WITH next AS (
		SELECT id
		FROM queue_messages
		WHERE channel = $1 AND visible_at <= NOW()
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE queue_messages q
	SET visible_at = NOW() + ($3::bigint * INTERVAL '1 millisecond'),
		lock_token = $4,
		delivery_count = q.delivery_count + 1
	FROM next
	WHERE q.id = next.id
	RETURNING q.id, q.message_id, q.body, q.delivery_count, q.enqueued_at
`

const deleteMessageQuery = `
	DELETE FROM queue_messages
	WHERE id = $1 AND channel = $2 AND lock_token = $3 AND visible_at > NOW()
`

// NewBroker creates a broker driver on db.
func NewBroker(db *sql.DB, opts BrokerOptions, logger *slog.Logger) *Broker {
	if db == nil {
		panic("db cannot be nil")
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
	return &Broker{
		db:         db,
		logger:     logger.With(slog.String("component", "postgres_broker")),
		visibility: opts.VisibilityTimeout,
		poll:       opts.PollInterval,
		done:       make(chan struct{}),
	}
}

// CreateSender implements broker.Broker.
func (b *Broker) CreateSender(channel string) (broker.Sender, error) {
	if err := b.checkChannel("create sender", channel); err != nil {
		return nil, err
	}
	return &pgSender{broker: b, channel: channel}, nil
}

// CreateReceiver implements broker.Broker.
func (b *Broker) CreateReceiver(channel string) (broker.Receiver, error) {
	if err := b.checkChannel("create receiver", channel); err != nil {
		return nil, err
	}
	return &pgReceiver{broker: b, channel: channel}, nil
}

// CreateProcessor implements broker.Broker.
func (b *Broker) CreateProcessor(channel string, opts broker.ProcessorOptions) (broker.Processor, error) {
	r, err := b.CreateReceiver(channel)
	if err != nil {
		return nil, err
	}
	return broker.NewPollingProcessor(r, opts), nil
}

// Close implements broker.Broker. Pending receives return immediately.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Broker) checkChannel(op, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return broker.NewError(op, channel, broker.ReasonEntityNotFound, broker.ErrInvalidChannel)
	}
	if b.isClosed() {
		return broker.NewError(op, channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return nil
}

func (b *Broker) insert(ctx context.Context, channel string, msg broker.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ContentType == "" {
		msg.ContentType = broker.ContentTypeJSON
	}
	if msg.Body == nil {
		msg.Body = []byte{}
	}
	_, err := b.db.ExecContext(ctx, insertMessageQuery, channel, msg.ID, msg.ContentType, msg.Body)
	return brokerError("send", channel, err)
}

// lease claims up to maxCount visible messages under a single lock token.
func (b *Broker) lease(ctx context.Context, channel string, maxCount int) ([]broker.ReceivedMessage, error) {
	token := uuid.New()
	rows, err := b.db.QueryContext(ctx, leaseMessagesQuery,
		channel, maxCount, b.visibility.Milliseconds(), token.String())
	if err != nil {
		return nil, brokerError("receive", channel, err)
	}
	defer func() { _ = rows.Close() }()

	var out []broker.ReceivedMessage
	for rows.Next() {
		var (
			id  int64
			msg broker.ReceivedMessage
		)
		if err := rows.Scan(&id, &msg.ID, &msg.Body, &msg.DeliveryCount, &msg.EnqueuedAt); err != nil {
			return nil, brokerError("receive", channel, err)
		}
		msg.Handle = encodeHandle(id, token)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, brokerError("receive", channel, err)
	}

	// UPDATE ... RETURNING does not preserve the CTE ordering
	sortByHandleID(out)
	return out, nil
}

func (b *Broker) delete(ctx context.Context, channel string, handle broker.Handle) error {
	id, token, ok := decodeHandle(handle)
	if !ok {
		return broker.NewError("complete", channel, broker.ReasonLockLost,
			fmt.Errorf("%w: malformed handle %q", broker.ErrLockLost, handle))
	}

	result, err := b.db.ExecContext(ctx, deleteMessageQuery, id, channel, token.String())
	if err != nil {
		return brokerError("complete", channel, err)
	}
	if err := CheckRowsAffected(result, broker.ErrLockLost); err != nil {
		if errors.Is(err, broker.ErrLockLost) {
			return broker.NewError("complete", channel, broker.ReasonLockLost, err)
		}
		return brokerError("complete", channel, err)
	}
	return nil
}

func encodeHandle(id int64, token uuid.UUID) broker.Handle {
	return broker.Handle(strconv.FormatInt(id, 10) + ":" + token.String())
}

func decodeHandle(h broker.Handle) (int64, uuid.UUID, bool) {
	idPart, tokenPart, found := strings.Cut(string(h), ":")
	if !found {
		return 0, uuid.Nil, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, uuid.Nil, false
	}
	token, err := uuid.Parse(tokenPart)
	if err != nil {
		return 0, uuid.Nil, false
	}
	return id, token, true
}

func sortByHandleID(msgs []broker.ReceivedMessage) {
	handleID := func(m broker.ReceivedMessage) int64 {
		id, _, _ := decodeHandle(m.Handle)
		return id
	}
	slices.SortFunc(msgs, func(a, b broker.ReceivedMessage) int {
		return cmp.Compare(handleID(a), handleID(b))
	})
}

type pgSender struct {
	broker  *Broker
	channel string

	mu     sync.Mutex
	closed bool
}

func (s *pgSender) Send(ctx context.Context, msg broker.Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.broker.isClosed() {
		return broker.NewError("send", s.channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return s.broker.insert(ctx, s.channel, msg)
}

func (s *pgSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type pgReceiver struct {
	broker  *Broker
	channel string

	mu     sync.Mutex
	closed bool
}

func (r *pgReceiver) Receive(ctx context.Context, maxCount int, maxWait time.Duration) ([]broker.ReceivedMessage, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	deadline := time.Now().Add(maxWait)
	for {
		if r.IsClosed() || r.broker.isClosed() {
			return nil, broker.NewError("receive", r.channel, broker.ReasonClosed, broker.ErrClosed)
		}

		msgs, err := r.broker.lease(ctx, r.channel, maxCount)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		wait := min(r.broker.poll, remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-r.broker.done:
			timer.Stop()
			return nil, broker.NewError("receive", r.channel, broker.ReasonClosed, broker.ErrClosed)
		case <-timer.C:
		}
	}
}

func (r *pgReceiver) Complete(ctx context.Context, handle broker.Handle) error {
	if r.broker.isClosed() {
		return broker.NewError("complete", r.channel, broker.ReasonClosed, broker.ErrClosed)
	}
	return r.broker.delete(ctx, r.channel, handle)
}

func (r *pgReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *pgReceiver) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
