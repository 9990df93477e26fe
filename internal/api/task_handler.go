package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskflow/internal/api/shared"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/service"
)

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	tasks  service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks service.TaskService, logger *slog.Logger) *TaskHandler {
	if tasks == nil {
		panic("tasks service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks.
// The task is stored, enqueued and returned with 202 Accepted.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	task, err := h.tasks.AddTask(r.Context(), service.NewTask{
		Name:        req.Name,
		Description: trimmedPtr(req.Description),
		AssignedTo:  trimmedPtr(req.AssignedTo),
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("task accepted", slog.Int("task_id", task.ID))
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToResponse(*task))
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListTasks(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasksToResponse(tasks)})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathID(w, r, "id", log)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(*task))
}

// UpdateTaskStatus handles PUT /api/tasks/{id}/status.
func (h *TaskHandler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathID(w, r, "id", log)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	status, err := domain.ParseTaskStatus(req.Status)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.tasks.UpdateTaskStatus(r.Context(), id, status); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("task status updated", slog.Int("task_id", id), slog.String("status", status.String()))
	shared.RespondNoContent(w)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathID(w, r, "id", log)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondNoContent(w)
}

// ReceiveTasks handles POST /api/tasks/receive?count=N.
// It responds 204 when no task arrived within the receive wait. When some
// tasks were received but their records could not all be updated, the tasks
// are still returned since their messages are already acknowledged.
func (h *TaskHandler) ReceiveTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	count, err := receiveCount(r)
	if err != nil {
		HandleAPIError(w, r, err, "Invalid count")
		return
	}

	tasks, err := h.tasks.ReceiveTasks(r.Context(), count)
	if err != nil {
		if len(tasks) == 0 || errors.Is(err, service.ErrPushModeActive) {
			HandleAPIError(w, r, err, "")
			return
		}
		log.Warn("returning received tasks after partial failure",
			slog.Int("task_count", len(tasks)),
			slog.String("error", err.Error()))
	}

	if len(tasks) == 0 {
		shared.RespondNoContent(w)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ReceiveTasksResponse{Tasks: tasksToResponse(tasks)})
}

// ReceiveCompletionEvents handles POST /api/completion-events/receive?count=N.
func (h *TaskHandler) ReceiveCompletionEvents(w http.ResponseWriter, r *http.Request) {
	count, err := receiveCount(r)
	if err != nil {
		HandleAPIError(w, r, err, "Invalid count")
		return
	}

	events, err := h.tasks.ReceiveCompletionEvents(r.Context(), count)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if len(events) == 0 {
		shared.RespondNoContent(w)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CompletionEventsResponse{Events: events})
}
