package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db *sql.DB, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.TaskMessage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO site_tasks (name, description, status, assigned_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		task.Name,
		task.Description,
		int(task.Status),
		task.AssignedTo,
	).Scan(&task.ID)
	if err != nil {
		log.Error("failed to create task", slog.String("error", err.Error()))
		return store.NewStoreError("task", "create", "failed to insert task", MapError(err))
	}

	log.Info("task created", slog.Int("task_id", task.ID))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id int) (*domain.TaskMessage, error) {
	return getTask(ctx, s.db, id, false)
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context) ([]domain.TaskMessage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, assigned_to
		FROM site_tasks
		ORDER BY id
	`)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", "list", "failed to query tasks", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]domain.TaskMessage, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", "list", "failed to scan task", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", "list", "failed to iterate tasks", err)
	}
	return tasks, nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus.
// The row is locked while the transition is checked.
func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, id int, status domain.TaskStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		current, err := getTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidStatusTransition, current.Status, status)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE site_tasks
			SET status = $1, updated_at = NOW()
			WHERE id = $2
		`, int(status), id)
		if err != nil {
			return MapError(err)
		}
		return CheckRowsAffected(result, store.ErrTaskNotFound)
	})
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) || errors.Is(err, domain.ErrInvalidStatusTransition) {
			log.Debug("task status not updated",
				slog.Int("task_id", id),
				slog.String("status", status.String()),
				slog.String("reason", err.Error()))
			return err
		}
		log.Error("failed to update task status",
			slog.Int("task_id", id),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "update", "failed to update status", err)
	}
	return nil
}

// Delete implements store.TaskStore.Delete
func (s *PostgresTaskStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM site_tasks WHERE id = $1`, id)
	if err != nil {
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// getTask loads one task through q, optionally locking the row.
func getTask(ctx context.Context, q store.DBTX, id int, forUpdate bool) (*domain.TaskMessage, error) {
	query := `
		SELECT id, name, description, status, assigned_to
		FROM site_tasks
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	task, err := scanTask(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("task", "get", "failed to load task", MapError(err))
	}
	return task, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.TaskMessage, error) {
	var (
		task        domain.TaskMessage
		description sql.NullString
		assignedTo  sql.NullString
		status      int
	)
	if err := row.Scan(&task.ID, &task.Name, &description, &status, &assignedTo); err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	if !task.Status.IsValid() {
		return nil, fmt.Errorf("%w: stored value %d", domain.ErrInvalidTaskStatus, status)
	}
	if description.Valid {
		task.Description = &description.String
	}
	if assignedTo.Valid {
		task.AssignedTo = &assignedTo.String
	}
	return &task, nil
}
