package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/ciutil"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openIntegrationDB connects to the test database and applies migrations.
func openIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()
	url := ciutil.RequireTestDatabaseURL(t)

	ctx := context.Background()
	db, err := Open(ctx, url, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, "up", discardLogger()))
	return db
}

func TestIntegrationTaskStore(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	s := NewPostgresTaskStore(db, discardLogger())

	task := &domain.TaskMessage{Name: "integration", AssignedTo: domain.StringPtr("bob")}
	require.NoError(t, s.Create(ctx, task))
	t.Cleanup(func() { _ = s.Delete(context.Background(), task.ID) })
	assert.Positive(t, task.ID)

	require.NoError(t, s.UpdateStatus(ctx, task.ID, domain.TaskStatusInProgress))
	err := s.UpdateStatus(ctx, task.ID, domain.TaskStatusNotStarted)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	assert.Equal(t, "bob", *got.AssignedTo)

	_, err = s.GetByID(ctx, -1)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestIntegrationBrokerRoundTrip(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()
	channel := "integration-" + time.Now().UTC().Format("150405.000000000")
	b := NewBroker(db, BrokerOptions{VisibilityTimeout: time.Second, PollInterval: 10 * time.Millisecond}, discardLogger())
	t.Cleanup(func() { _ = b.Close() })

	s, err := b.CreateSender(channel)
	require.NoError(t, err)
	for _, body := range []string{"a", "b"} {
		require.NoError(t, s.Send(ctx, broker.Message{Body: []byte(body)}))
	}

	r, err := b.CreateReceiver(channel)
	require.NoError(t, err)

	msgs, err := r.Receive(ctx, 5, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Body))
	require.NoError(t, r.Complete(ctx, msgs[0].Handle))

	// the uncompleted message comes back once its lease lapses
	again, err := r.Receive(ctx, 5, 3*time.Second)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "b", string(again[0].Body))
	assert.Equal(t, 2, again[0].DeliveryCount)

	assert.ErrorIs(t, r.Complete(ctx, msgs[1].Handle), broker.ErrLockLost)
	require.NoError(t, r.Complete(ctx, again[0].Handle))
}
