package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

func sampleTask(id, account string, submitted time.Time) model.PublishTask {
	return model.PublishTask{
		TaskID:      id,
		AccountID:   account,
		VideoPath:   "/data/videos/" + id + "_video.mp4",
		Title:       "title " + id,
		Status:      model.PublishStatusProcessing,
		Message:     "publish task submitted",
		SubmittedAt: submitted,
	}
}

func TestTaskRepo_CreateAndGet(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))
	ctx := context.Background()
	submitted := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleTask("t1", "42", submitted)))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "42", got.AccountID)
	assert.Equal(t, model.PublishStatusProcessing, got.Status)
	assert.Equal(t, submitted, got.SubmittedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestTaskRepo_GetMissing(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTaskRepo_UpdateStatus(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))
	ctx := context.Background()
	task := sampleTask("t1", "42", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, task))

	done := time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)
	task.Status = model.PublishStatusCompleted
	task.Message = "publish completed"
	task.UpstreamJobID = "job-9"
	task.CompletedAt = &done
	require.NoError(t, repo.UpdateStatus(ctx, task))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusCompleted, got.Status)
	assert.Equal(t, "job-9", got.UpstreamJobID)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, done, *got.CompletedAt)
}

func TestTaskRepo_UpdateStatusMissing(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))

	err := repo.UpdateStatus(context.Background(), sampleTask("nope", "42", time.Now()))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTaskRepo_ListByAccountNewestFirst(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleTask("a", "42", base)))
	require.NoError(t, repo.Create(ctx, sampleTask("b", "42", base.Add(500*time.Millisecond))))
	require.NoError(t, repo.Create(ctx, sampleTask("c", "42", base.Add(time.Second))))
	require.NoError(t, repo.Create(ctx, sampleTask("other", "7", base.Add(time.Hour))))

	tasks, err := repo.ListByAccount(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "c", tasks[0].TaskID)
	assert.Equal(t, "b", tasks[1].TaskID)
	assert.Equal(t, "a", tasks[2].TaskID)

	limited, err := repo.ListByAccount(ctx, "42", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].TaskID)
}

func TestTaskRepo_ListByAccountEmpty(t *testing.T) {
	repo := NewTaskRepo(setupTestDB(t))

	tasks, err := repo.ListByAccount(context.Background(), "42", 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
