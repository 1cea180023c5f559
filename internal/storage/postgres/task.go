package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_crawler/internal/domain"
)

type TaskStore struct {
	db *sqlx.DB
}

func NewTaskStore(db *sqlx.DB) *TaskStore {
	return &TaskStore{db: db}
}

func (s *TaskStore) Create(ctx context.Context, task *domain.CrawlerTask) error {
	query := `
		INSERT INTO crawler_tasks (task_id, config_id, status, is_test, is_forced, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING id, created_at`

	var createdAt *time.Time
	if !task.CreatedAt.IsZero() {
		createdAt = &task.CreatedAt
	}

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		task.TaskID,
		task.ConfigID,
		int(task.Status),
		task.IsTest,
		task.IsForced,
		createdAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// MarkRunning persists the pending->running transition. The WHERE clause
// keeps two workers from starting the same row.
func (s *TaskStore) MarkRunning(ctx context.Context, task *domain.CrawlerTask) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE crawler_tasks SET status = $2, start_time = $3 WHERE task_id = $1 AND status = $4`,
		task.TaskID,
		int(task.Status),
		task.StartTime,
		int(domain.TaskPending),
	)
	if err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}
	return expectOneRow(res, task.TaskID, domain.TaskPending)
}

// Finish persists the terminal state of a task. A pending row is accepted so
// a task whose start was never recorded can still be closed out.
func (s *TaskStore) Finish(ctx context.Context, task *domain.CrawlerTask) error {
	if !task.Status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidTransition, task.Status)
	}

	var result []byte
	if task.Result != nil {
		var err error
		if result, err = json.Marshal(task.Result); err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE crawler_tasks SET
			status = $2,
			start_time = COALESCE(start_time, $3),
			end_time = $4,
			result = $5,
			error_message = $6
		WHERE task_id = $1 AND status = ANY($7)`,
		task.TaskID,
		int(task.Status),
		task.StartTime,
		task.EndTime,
		result,
		task.ErrorMessage,
		pq.Array(openStatuses),
	)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return expectOneRow(res, task.TaskID, domain.TaskRunning)
}

// openStatuses are the states a task can still leave.
var openStatuses = []int64{int64(domain.TaskPending), int64(domain.TaskRunning)}

// FailAbandoned closes out pending or running tasks that started (or were
// queued) before cutoff. Callers pick a cutoff older than any live run can
// be, so tasks owned by another process are left alone. It returns how many
// rows were changed.
func (s *TaskStore) FailAbandoned(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE crawler_tasks SET
			status = $1,
			start_time = COALESCE(start_time, created_at),
			end_time = GREATEST(NOW(), COALESCE(start_time, created_at)),
			error_message = $3
		WHERE status = ANY($4) AND COALESCE(start_time, created_at) < $2`,
		int(domain.TaskFailed),
		cutoff,
		message,
		pq.Array(openStatuses),
	)
	if err != nil {
		return 0, fmt.Errorf("fail abandoned tasks: %w", err)
	}
	return res.RowsAffected()
}

type taskRow struct {
	ID           int64        `db:"id"`
	TaskID       string       `db:"task_id"`
	ConfigID     int64        `db:"config_id"`
	Status       int          `db:"status"`
	IsTest       bool         `db:"is_test"`
	IsForced     bool         `db:"is_forced"`
	StartTime    sql.NullTime `db:"start_time"`
	EndTime      sql.NullTime `db:"end_time"`
	Result       []byte       `db:"result"`
	ErrorMessage string       `db:"error_message"`
	CreatedAt    time.Time    `db:"created_at"`
}

func (s *TaskStore) GetByTaskID(ctx context.Context, taskID string) (*domain.CrawlerTask, error) {
	var row taskRow
	query := `
		SELECT id, task_id, config_id, status, is_test, is_forced, start_time, end_time,
			result, error_message, created_at
		FROM crawler_tasks
		WHERE task_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	task := &domain.CrawlerTask{
		ID:           row.ID,
		TaskID:       row.TaskID,
		ConfigID:     row.ConfigID,
		Status:       domain.TaskStatus(row.Status),
		IsTest:       row.IsTest,
		IsForced:     row.IsForced,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
	}
	if row.StartTime.Valid {
		task.StartTime = &row.StartTime.Time
	}
	if row.EndTime.Valid {
		task.EndTime = &row.EndTime.Time
	}
	if len(row.Result) > 0 {
		var result domain.TaskResult
		if err := json.Unmarshal(row.Result, &result); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		task.Result = &result
	}
	return task, nil
}

func expectOneRow(res sql.Result, taskID string, from domain.TaskStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: task %s is not %s", domain.ErrInvalidTransition, taskID, from)
	}
	return nil
}
