package domain

import (
	"fmt"
	"time"
)

type TaskStatus int

const (
	TaskPending   TaskStatus = 0
	TaskRunning   TaskStatus = 1
	TaskCompleted TaskStatus = 2
	TaskFailed    TaskStatus = 4
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to next.
// Allowed: pending->running, running->completed, running->failed.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskRunning
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// CrawlerTask is one execution attempt against a config.
type CrawlerTask struct {
	ID           int64
	TaskID       string
	ConfigID     int64
	Config       *CrawlerConfig
	Status       TaskStatus
	IsTest       bool
	IsForced     bool
	StartTime    *time.Time
	EndTime      *time.Time
	Result       *TaskResult
	ErrorMessage string
	CreatedAt    time.Time
}

// Start moves the task to running.
func (t *CrawlerTask) Start(now time.Time) error {
	if !t.Status.CanTransition(TaskRunning) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskRunning)
	}
	t.Status = TaskRunning
	t.StartTime = &now
	return nil
}

// Complete records a successful run.
func (t *CrawlerTask) Complete(now time.Time, result *TaskResult) error {
	if !t.Status.CanTransition(TaskCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskCompleted)
	}
	t.Status = TaskCompleted
	t.EndTime = t.clampEnd(now)
	t.Result = result
	return nil
}

// Fail records a failed run.
func (t *CrawlerTask) Fail(now time.Time, message string, result *TaskResult) error {
	if !t.Status.CanTransition(TaskFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskFailed)
	}
	t.Status = TaskFailed
	t.EndTime = t.clampEnd(now)
	t.ErrorMessage = message
	t.Result = result
	return nil
}

// clampEnd keeps end_time >= start_time when the clock steps backwards.
func (t *CrawlerTask) clampEnd(now time.Time) *time.Time {
	if t.StartTime != nil && now.Before(*t.StartTime) {
		now = *t.StartTime
	}
	return &now
}

// UpdatesLastRun reports whether finishing this task should move the
// config's last_run_time. Test runs never do; forced runs only on success.
func (t *CrawlerTask) UpdatesLastRun() bool {
	if t.IsTest || t.EndTime == nil {
		return false
	}
	if t.IsForced && t.Status != TaskCompleted {
		return false
	}
	return t.Status.Terminal()
}

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// TaskResult is the envelope reported for a run.
type TaskResult struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Stats   RunStats `json:"stats"`
}

func (r *TaskResult) Succeeded() bool {
	return r != nil && r.Status == ResultSuccess
}

// RunStats counts item outcomes. Every item seen at the parser boundary
// increments Total and exactly one of the other counters.
type RunStats struct {
	Total     int `json:"total"`
	Saved     int `json:"saved"`
	Duplicate int `json:"duplicate"`
	Filtered  int `json:"filtered"`
	Error     int `json:"error"`
}

func (s RunStats) Consistent() bool {
	return s.Total == s.Saved+s.Duplicate+s.Filtered+s.Error
}

type ItemOutcome string

const (
	OutcomeSaved     ItemOutcome = "saved"
	OutcomeDuplicate ItemOutcome = "duplicate"
	OutcomeFiltered  ItemOutcome = "filtered"
	OutcomeError     ItemOutcome = "error"
)

// Record counts one item.
func (s *RunStats) Record(o ItemOutcome) {
	s.Total++
	switch o {
	case OutcomeSaved:
		s.Saved++
	case OutcomeDuplicate:
		s.Duplicate++
	case OutcomeFiltered:
		s.Filtered++
	default:
		s.Error++
	}
}
