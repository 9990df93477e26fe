package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/taskflow/internal/domain"
)

// MemoryTaskStore is a TaskStore kept in process memory. It is used when no
// database is configured.
type MemoryTaskStore struct {
	mu     sync.RWMutex
	nextID int
	tasks  map[int]domain.TaskMessage
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty store. IDs start at 1.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		nextID: 1,
		tasks:  make(map[int]domain.TaskMessage),
	}
}

// Create implements TaskStore.
func (s *MemoryTaskStore) Create(_ context.Context, task *domain.TaskMessage) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = s.nextID
	s.nextID++
	s.tasks[task.ID] = copyTask(*task)
	return nil
}

// GetByID implements TaskStore.
func (s *MemoryTaskStore) GetByID(_ context.Context, id int) (*domain.TaskMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	out := copyTask(task)
	return &out, nil
}

// List implements TaskStore.
func (s *MemoryTaskStore) List(_ context.Context) ([]domain.TaskMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TaskMessage, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, copyTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStatus implements TaskStore.
func (s *MemoryTaskStore) UpdateStatus(_ context.Context, id int, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if !task.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidStatusTransition, task.Status, status)
	}
	task.Status = status
	s.tasks[id] = task
	return nil
}

// Delete implements TaskStore.
func (s *MemoryTaskStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// copyTask detaches the optional string fields from the caller's pointers.
func copyTask(t domain.TaskMessage) domain.TaskMessage {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		t.AssignedTo = &a
	}
	return t
}
