package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for visibility-timeout tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func send(t *testing.T, b *Broker, channel string, bodies ...string) {
	t.Helper()
	s, err := b.CreateSender(channel)
	require.NoError(t, err)
	defer s.Close()
	for _, body := range bodies {
		require.NoError(t, s.Send(context.Background(), broker.Message{Body: []byte(body)}))
	}
}

func TestReceiveAndComplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := New(Options{})

	send(t, b, "tasks", "a", "b", "c")

	r, err := b.CreateReceiver("tasks")
	require.NoError(t, err)
	defer r.Close()

	msgs, err := r.Receive(ctx, 2, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Body))
	assert.Equal(t, "b", string(msgs[1].Body))
	assert.Equal(t, 1, msgs[0].DeliveryCount)
	assert.NotEmpty(t, msgs[0].ID)

	require.NoError(t, r.Complete(ctx, msgs[0].Handle))
	assert.Equal(t, 2, b.Depth("tasks"))

	// completing twice loses the lock
	err = r.Complete(ctx, msgs[0].Handle)
	assert.ErrorIs(t, err, broker.ErrLockLost)
	assert.Equal(t, broker.ReasonLockLost, broker.ReasonOf(err))
	assert.False(t, broker.IsTransient(err))
}

func TestReceiveEmptyChannelWaitsForMaxWait(t *testing.T) {
	t.Parallel()
	b := New(Options{})
	r, err := b.CreateReceiver("tasks")
	require.NoError(t, err)

	start := time.Now()
	msgs, err := r.Receive(context.Background(), 5, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestReceiveWakesOnSend(t *testing.T) {
	t.Parallel()
	b := New(Options{})
	r, err := b.CreateReceiver("tasks")
	require.NoError(t, err)

	s, err := b.CreateSender("tasks")
	require.NoError(t, err)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = s.Send(context.Background(), broker.Message{Body: []byte("late")})
	}()

	msgs, err := r.Receive(context.Background(), 5, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", string(msgs[0].Body))
}

func TestUncompletedMessageIsRedelivered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(Options{VisibilityTimeout: time.Minute, Now: clock.Now})

	send(t, b, "tasks", "a")
	r, err := b.CreateReceiver("tasks")
	require.NoError(t, err)

	first, err := r.Receive(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// hidden while leased
	none, err := r.Receive(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, none)

	clock.Advance(2 * time.Minute)

	second, err := r.Receive(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].DeliveryCount)

	// the stale handle no longer completes the message
	assert.ErrorIs(t, r.Complete(ctx, first[0].Handle), broker.ErrLockLost)
	require.NoError(t, r.Complete(ctx, second[0].Handle))
	assert.Equal(t, 0, b.Depth("tasks"))
}

func TestChannelsAreIndependent(t *testing.T) {
	t.Parallel()
	b := New(Options{})
	send(t, b, "tasks", "task")
	send(t, b, "completions", "event")

	r, err := b.CreateReceiver("completions")
	require.NoError(t, err)
	msgs, err := r.Receive(context.Background(), 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, r.Complete(context.Background(), msgs[0].Handle))

	assert.Equal(t, 1, b.Depth("tasks"))
	assert.Equal(t, 0, b.Depth("completions"))
}

func TestClosedClients(t *testing.T) {
	t.Parallel()
	b := New(Options{})

	_, err := b.CreateSender("")
	assert.ErrorIs(t, err, broker.ErrInvalidChannel)

	r, err := b.CreateReceiver("tasks")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, r.IsClosed())
	_, err = r.Receive(context.Background(), 1, time.Millisecond)
	assert.Equal(t, broker.ReasonClosed, broker.ReasonOf(err))

	require.NoError(t, b.Close())
	_, err = b.CreateSender("tasks")
	assert.ErrorIs(t, err, broker.ErrClosed)
}

func TestProcessorStreamsDeliveries(t *testing.T) {
	t.Parallel()
	b := New(Options{})
	send(t, b, "tasks", "one", "two")

	p, err := b.CreateProcessor("tasks", broker.ProcessorOptions{MaxWait: 10 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan broker.Delivery)
	done := make(chan error, 1)
	go func() { done <- p.Stream(ctx, out, nil) }()

	for _, want := range []string{"one", "two"} {
		d := <-out
		assert.Equal(t, want, string(d.Message.Body))
		require.NoError(t, d.Complete(context.Background()))
	}

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 0, b.Depth("tasks"))
}
