package database

import (
	"context"
	"fmt"
	"time"

	"hostelpay/internal/models"
)

const taskColumns = `id, task_type, reference, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateTask(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO task_queue (task_type, reference, payload, status, retry_count, last_error, created_at, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskType,
		task.Reference,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

// GetDueTasks returns pending and retry tasks whose next attempt is due.
func (db *DB) GetDueTasks(ctx context.Context, limit int) ([]models.Task, error) {
	return db.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM task_queue
		 WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		models.TaskStatusPending, models.TaskStatusRetry, time.Now().UTC(), limit,
	)
}

func (db *DB) GetFailedTasks(ctx context.Context) ([]models.Task, error) {
	return db.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM task_queue WHERE status = ? ORDER BY created_at DESC`,
		models.TaskStatusFailed,
	)
}

func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	tasks, err := db.queryTasks(ctx, `SELECT `+taskColumns+` FROM task_queue WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return &tasks[0], nil
}

// UpdateTaskStatus records a processing result. Retry bumps retry_count;
// completed and failed stamp processed_at.
func (db *DB) UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	var query string
	var args []any
	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE task_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastError, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		now := time.Now().UTC()
		query = `UPDATE task_queue SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []any{status, lastError, now, id}
	default:
		query = `UPDATE task_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastError, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		err := rows.Scan(&t.ID, &t.TaskType, &t.Reference, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
