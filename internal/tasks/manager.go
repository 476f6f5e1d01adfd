// Package tasks provides a generic async-task registry backed by a bounded
// worker pool. A started task gets an opaque id immediately; callers poll the
// registry for status and result.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Status of a tracked task. Jobs may push arbitrary intermediate statuses
// between StatusStarting and the terminal ones.
type Status string

const (
	StatusStarting Status = "starting"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusNotFound Status = "not_found"
)

// Info is the externally visible state of a task.
type Info struct {
	Status Status `json:"status"`
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Func is a unit of work. update pushes an intermediate status; the returned
// value becomes the task result on success.
type Func func(ctx context.Context, update func(Status)) (any, error)

type job struct {
	id string
	fn Func
}

// Manager runs tasks on a fixed pool of workers and tracks their state by id.
// Entries are kept until the process exits; the registry is a polling surface,
// not a durable queue.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Info

	queue  chan job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewManager initializes a Manager with a worker pool.
// If workers is 0 or negative, it defaults to 1.
func NewManager(workers int, logger *slog.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	m := &Manager{
		entries: make(map[string]*Info),
		queue:   make(chan job, 100),
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.startWorker(i)
	}
	return m
}

// Start registers fn and queues it for execution, returning the task id
// immediately. A full queue rejects the task, giving callers backpressure.
func (m *Manager) Start(fn Func) (string, error) {
	id := uuid.NewString()

	m.mu.Lock()
	m.entries[id] = &Info{Status: StatusStarting}
	m.mu.Unlock()

	select {
	case m.queue <- job{id: id, fn: fn}:
		return id, nil
	default:
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
		return "", fmt.Errorf("task queue is full, cannot accept new task")
	}
}

// Get returns the task's current state. Unknown ids get the not_found
// sentinel rather than an error; an expired or mistyped id is not exceptional.
func (m *Manager) Get(id string) Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info, ok := m.entries[id]; ok {
		return *info
	}
	return Info{Status: StatusNotFound}
}

// Stop gracefully shuts down the pool, waiting for in-flight tasks to finish.
func (m *Manager) Stop() {
	m.logger.Info("stopping task manager and waiting for tasks to finish")
	close(m.queue)
	m.wg.Wait()
	m.logger.Info("all tasks have finished")
}

func (m *Manager) startWorker(workerID int) {
	defer m.wg.Done()
	m.logger.Info("starting task worker", "id", workerID)

	for j := range m.queue {
		m.runJob(workerID, j)
	}

	m.logger.Info("shutting down task worker", "id", workerID)
}

func (m *Manager) runJob(workerID int, j job) {
	m.logger.Info("worker processing task", "worker_id", workerID, "task_id", j.id)

	update := func(status Status) {
		m.setStatus(j.id, status)
	}

	result, err := j.fn(context.Background(), update)
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.entries[j.id]
	if !ok {
		return
	}
	if err != nil {
		m.logger.Error("task failed", "task_id", j.id, "error", err)
		info.Status = StatusFailed
		info.Error = err.Error()
		return
	}
	info.Status = StatusDone
	info.Result = result
}

func (m *Manager) setStatus(id string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.entries[id]; ok {
		info.Status = status
	}
}
