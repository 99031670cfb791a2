package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reachby3cs/engage/internal/domain"
)

// TaskStatus tracks a scheduled task through its lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskPaused    TaskStatus = "paused"
)

// TaskFunc is the body of a scheduled task.
type TaskFunc func(ctx domain.Context) error

// ScheduledTask is the bookkeeping record for one periodic task.
type ScheduledTask struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Interval       int        `json:"interval_seconds"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastDurationMS int64      `json:"last_run_duration_ms"`
	LastError      string     `json:"last_error,omitempty"`
	Status         TaskStatus `json:"status"`
	RunCount       int        `json:"run_count"`
	ErrorCount     int        `json:"error_count"`
	Enabled        bool       `json:"enabled"`
}

// RunnerStats summarizes the runner and all registered tasks.
type RunnerStats struct {
	Running      bool                     `json:"running"`
	TaskCount    int                      `json:"task_count"`
	EnabledTasks int                      `json:"enabled_tasks"`
	TotalRuns    int                      `json:"total_runs"`
	TotalErrors  int                      `json:"total_errors"`
	Tasks        map[string]ScheduledTask `json:"tasks"`
}

// Runner fires registered tasks on their intervals. The loop ticks once
// per second; due tasks run in the background so a slow task never
// blocks the tick.
type Runner struct {
	mu        sync.Mutex
	tasks     map[string]*ScheduledTask
	callbacks map[string]TaskFunc
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	now func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		tasks:     make(map[string]*ScheduledTask),
		callbacks: make(map[string]TaskFunc),
		now:       time.Now,
	}
}

// RegisterTask adds a periodic task. When runImmediately is set the
// first fire happens on the next tick instead of one interval out.
func (r *Runner) RegisterTask(name, description string, interval time.Duration, runImmediately bool, fn TaskFunc) (*ScheduledTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return nil, fmt.Errorf("op=automation.RegisterTask: task %q: %w", name, domain.ErrConflict)
	}

	task := &ScheduledTask{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Interval:    int(interval.Seconds()),
		Status:      TaskPending,
		Enabled:     true,
	}
	next := r.now()
	if !runImmediately {
		next = next.Add(interval)
	}
	task.NextRunAt = &next

	r.tasks[name] = task
	r.callbacks[name] = fn

	slog.Info("task registered",
		slog.String("task", name),
		slog.Duration("interval", interval))
	return task, nil
}

// UnregisterTask removes a task. Returns false when the name is unknown.
func (r *Runner) UnregisterTask(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; !ok {
		return false
	}
	delete(r.tasks, name)
	delete(r.callbacks, name)
	return true
}

// Task returns a copy of the named task's record.
func (r *Runner) Task(name string) (ScheduledTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[name]
	if !ok {
		return ScheduledTask{}, false
	}
	return *task, true
}

func (r *Runner) EnableTask(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[name]
	if !ok {
		return false
	}
	task.Enabled = true
	task.Status = TaskPending
	return true
}

func (r *Runner) DisableTask(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[name]
	if !ok {
		return false
	}
	task.Enabled = false
	task.Status = TaskPaused
	return true
}

// UpdateInterval changes how often a task fires. The new interval takes
// effect after the task's next completion.
func (r *Runner) UpdateInterval(name string, interval time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[name]
	if !ok {
		return false
	}
	task.Interval = int(interval.Seconds())
	return true
}

// TriggerTask runs a task immediately, bypassing its schedule.
func (r *Runner) TriggerTask(ctx domain.Context, name string) error {
	r.mu.Lock()
	_, ok := r.tasks[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("op=automation.TriggerTask: task %q: %w", name, domain.ErrNotFound)
	}
	return r.runTask(ctx, name)
}

// Start launches the tick loop.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	taskCount := len(r.tasks)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
	slog.Info("task runner started", slog.Int("tasks", taskCount))
}

// Stop halts the tick loop and waits for in-flight tasks.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	slog.Info("task runner stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.fireDue(ctx)
		}
	}
}

func (r *Runner) fireDue(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	var due []string
	for name, task := range r.tasks {
		if !task.Enabled || task.Status == TaskRunning {
			continue
		}
		if task.NextRunAt != nil && !task.NextRunAt.After(now) {
			due = append(due, name)
		}
	}
	r.mu.Unlock()

	for _, name := range due {
		name := name
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_ = r.runTask(ctx, name)
		}()
	}
}

func (r *Runner) runTask(ctx domain.Context, name string) error {
	r.mu.Lock()
	task, ok := r.tasks[name]
	fn := r.callbacks[name]
	if !ok || fn == nil {
		r.mu.Unlock()
		return fmt.Errorf("op=automation.runTask: task %q: %w", name, domain.ErrNotFound)
	}
	started := r.now()
	task.Status = TaskRunning
	task.LastRunAt = &started
	r.mu.Unlock()

	err := fn(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	task.LastDurationMS = r.now().Sub(started).Milliseconds()
	task.RunCount++
	next := r.now().Add(time.Duration(task.Interval) * time.Second)
	task.NextRunAt = &next
	if err != nil {
		task.Status = TaskFailed
		task.ErrorCount++
		task.LastError = err.Error()
		slog.Error("task failed",
			slog.String("task", name),
			slog.String("error", err.Error()))
		return err
	}
	task.Status = TaskCompleted
	task.LastError = ""
	slog.Debug("task completed",
		slog.String("task", name),
		slog.Int64("duration_ms", task.LastDurationMS))
	return nil
}

// GetStats returns a snapshot of every task's bookkeeping.
func (r *Runner) GetStats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RunnerStats{
		Running:   r.running,
		TaskCount: len(r.tasks),
		Tasks:     make(map[string]ScheduledTask, len(r.tasks)),
	}
	for name, task := range r.tasks {
		if task.Enabled {
			stats.EnabledTasks++
		}
		stats.TotalRuns += task.RunCount
		stats.TotalErrors += task.ErrorCount
		stats.Tasks[name] = *task
	}
	return stats
}
