package driven

import (
	"context"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

// PublishTaskStore defines the driven port for locally tracked publish jobs.
type PublishTaskStore interface {
	Create(ctx context.Context, task model.PublishTask) error
	// Get returns model.ErrNotFound when no task has the given id.
	Get(ctx context.Context, taskID string) (*model.PublishTask, error)
	// UpdateStatus records the latest status. completedAt is set only when
	// the status is terminal.
	UpdateStatus(ctx context.Context, task model.PublishTask) error
	// ListByAccount returns up to limit tasks for the account, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.PublishTask, error)
}
