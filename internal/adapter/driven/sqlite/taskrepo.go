package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PublishTaskStore = (*TaskRepo)(nil)

// TaskRepo is the SQLite implementation of the PublishTaskStore port interface.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new TaskRepo backed by the given DB.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// Create inserts a new publish task.
func (r *TaskRepo) Create(ctx context.Context, task model.PublishTask) error {
	const query = `
		INSERT INTO publish_tasks
			(task_id, account_id, upstream_job_id, video_path, title, status, message, submitted_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		task.TaskID, task.AccountID, task.UpstreamJobID, task.VideoPath, task.Title,
		string(task.Status), task.Message, formatTime(task.SubmittedAt), nullTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("create publish task %q: %w", task.TaskID, err)
	}
	return nil
}

// Get returns the task with the given id.
func (r *TaskRepo) Get(ctx context.Context, taskID string) (*model.PublishTask, error) {
	const query = `
		SELECT task_id, account_id, upstream_job_id, video_path, title, status, message, submitted_at, completed_at
		FROM publish_tasks WHERE task_id = ?`

	task, err := scanTask(r.db.Reader.QueryRowContext(ctx, query, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("publish task %q: %w", taskID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get publish task %q: %w", taskID, err)
	}
	return task, nil
}

// UpdateStatus records the latest status, message and completion time.
func (r *TaskRepo) UpdateStatus(ctx context.Context, task model.PublishTask) error {
	const query = `
		UPDATE publish_tasks
		SET status = ?, message = ?, upstream_job_id = ?, completed_at = ?
		WHERE task_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(task.Status), task.Message, task.UpstreamJobID, nullTime(task.CompletedAt), task.TaskID)
	if err != nil {
		return fmt.Errorf("update publish task %q: %w", task.TaskID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("publish task %q: %w", task.TaskID, model.ErrNotFound)
	}
	return nil
}

// ListByAccount returns up to limit tasks for accountID, newest first.
func (r *TaskRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.PublishTask, error) {
	const query = `
		SELECT task_id, account_id, upstream_job_id, video_path, title, status, message, submitted_at, completed_at
		FROM publish_tasks WHERE account_id = ?
		ORDER BY submitted_at DESC
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list publish tasks for %q: %w", accountID, err)
	}
	defer rows.Close()

	tasks := []model.PublishTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publish task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publish tasks: %w", err)
	}
	return tasks, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.PublishTask, error) {
	var (
		task        model.PublishTask
		status      string
		submittedAt string
		completedAt sql.NullString
	)
	err := row.Scan(&task.TaskID, &task.AccountID, &task.UpstreamJobID, &task.VideoPath, &task.Title,
		&status, &task.Message, &submittedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.Status = model.PublishStatus(status)
	if task.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	if task.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &task, nil
}
