package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskColumns = []string{"id", "name", "description", "status", "assigned_to"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockTaskStore(t *testing.T) (*PostgresTaskStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresTaskStore(db, discardLogger()), mock
}

func TestNewPostgresTaskStorePanicsOnNilDB(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewPostgresTaskStore(nil, nil) })
}

func TestPostgresTaskStoreCreate(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("INSERT INTO site_tasks").
		WithArgs("Test Task", "desc", int64(domain.TaskStatusNotStarted), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	task := &domain.TaskMessage{Name: "Test Task", Description: domain.StringPtr("desc")}
	require.NoError(t, s.Create(context.Background(), task))
	assert.Equal(t, 7, task.ID)
}

func TestPostgresTaskStoreCreateRejectsInvalidTask(t *testing.T) {
	t.Parallel()
	s, _ := newMockTaskStore(t)

	err := s.Create(context.Background(), &domain.TaskMessage{Name: ""})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrEmptyTaskName)
}

func TestPostgresTaskStoreCreateMapsConstraintViolation(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("INSERT INTO site_tasks").
		WillReturnError(newPgError(checkViolationCode))

	err := s.Create(context.Background(), &domain.TaskMessage{Name: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestPostgresTaskStoreGetByID(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("FROM site_tasks WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(1, "Test Task", nil, 1, "alice"))

	task, err := s.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Test Task", task.Name)
	assert.Nil(t, task.Description)
	assert.Equal(t, domain.TaskStatusInProgress, task.Status)
	require.NotNil(t, task.AssignedTo)
	assert.Equal(t, "alice", *task.AssignedTo)
}

func TestPostgresTaskStoreGetByIDNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("FROM site_tasks WHERE id = \\$1").
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestPostgresTaskStoreGetByIDRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("FROM site_tasks").
		WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(1, "t", nil, 9, nil))

	_, err := s.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTaskStatus)
}

func TestPostgresTaskStoreList(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("FROM site_tasks ORDER BY id").
		WillReturnRows(sqlmock.NewRows(taskColumns).
			AddRow(1, "one", "d", 0, nil).
			AddRow(2, "two", nil, 2, nil))

	tasks, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "one", tasks[0].Name)
	assert.Equal(t, domain.TaskStatusCompleted, tasks[1].Status)
}

func TestPostgresTaskStoreListEmpty(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectQuery("FROM site_tasks").WillReturnRows(sqlmock.NewRows(taskColumns))

	tasks, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestPostgresTaskStoreUpdateStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current int
		next    domain.TaskStatus
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name:    "forward transition",
			current: 0,
			next:    domain.TaskStatusInProgress,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE site_tasks SET status").
					WithArgs(1, 5).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:    "same status",
			current: 2,
			next:    domain.TaskStatusCompleted,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE site_tasks SET status").
					WithArgs(2, 5).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:    "backward transition",
			current: 2,
			next:    domain.TaskStatusNotStarted,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectRollback()
			},
			wantErr: domain.ErrInvalidStatusTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockTaskStore(t)
			mock.ExpectBegin()
			mock.ExpectQuery("FROM site_tasks WHERE id = \\$1 FOR UPDATE").
				WithArgs(5).
				WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(5, "t", nil, tt.current, nil))
			tt.setup(mock)

			err := s.UpdateStatus(context.Background(), 5, tt.next)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPostgresTaskStoreUpdateStatusNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(9).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.UpdateStatus(context.Background(), 9, domain.TaskStatusCompleted)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestPostgresTaskStoreDelete(t *testing.T) {
	t.Parallel()
	s, mock := newMockTaskStore(t)

	mock.ExpectExec("DELETE FROM site_tasks").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM site_tasks").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Delete(context.Background(), 3))
	assert.ErrorIs(t, s.Delete(context.Background(), 3), store.ErrTaskNotFound)
}
