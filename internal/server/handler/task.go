package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/revuhq/revu/internal/tasks"
)

// TaskHandler exposes the async task registry for polling.
type TaskHandler struct {
	taskMgr *tasks.Manager
}

func NewTaskHandler(taskMgr *tasks.Manager) *TaskHandler {
	return &TaskHandler{taskMgr: taskMgr}
}

// Get reports the current state of a task. Unknown ids are answered with the
// not_found sentinel status, not an HTTP error, so clients can poll freely.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, h.taskMgr.Get(id))
}
