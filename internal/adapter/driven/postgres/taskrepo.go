package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

var _ driven.PublishTaskStore = (*TaskRepo)(nil)

// TaskRepo stores publish tasks in PostgreSQL.
type TaskRepo struct {
	pool Pool
}

func NewTaskRepo(pool Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `task_id, account_id, upstream_job_id, video_path, title, status, message, submitted_at, completed_at`

func (r *TaskRepo) Create(ctx context.Context, task model.PublishTask) error {
	const query = `INSERT INTO publish_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		task.TaskID, task.AccountID, task.UpstreamJobID, task.VideoPath, task.Title,
		string(task.Status), task.Message, task.SubmittedAt.UTC(), task.CompletedAt)
	if err != nil {
		return fmt.Errorf("create publish task %q: %w", task.TaskID, err)
	}
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*model.PublishTask, error) {
	const query = `SELECT ` + taskColumns + ` FROM publish_tasks WHERE task_id = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("publish task %q: %w", taskID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get publish task %q: %w", taskID, err)
	}
	return task, nil
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, task model.PublishTask) error {
	const query = `
		UPDATE publish_tasks
		SET status = $1, message = $2, upstream_job_id = $3, completed_at = $4
		WHERE task_id = $5`

	tag, err := r.pool.Exec(ctx, query,
		string(task.Status), task.Message, task.UpstreamJobID, task.CompletedAt, task.TaskID)
	if err != nil {
		return fmt.Errorf("update publish task %q: %w", task.TaskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("publish task %q: %w", task.TaskID, model.ErrNotFound)
	}
	return nil
}

func (r *TaskRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.PublishTask, error) {
	const query = `SELECT ` + taskColumns + ` FROM publish_tasks
		WHERE account_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
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

func scanTask(row pgx.Row) (*model.PublishTask, error) {
	var (
		task   model.PublishTask
		status string
	)
	err := row.Scan(&task.TaskID, &task.AccountID, &task.UpstreamJobID, &task.VideoPath, &task.Title,
		&status, &task.Message, &task.SubmittedAt, &task.CompletedAt)
	if err != nil {
		return nil, err
	}
	task.Status = model.PublishStatus(status)
	return &task, nil
}
