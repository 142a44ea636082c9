package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/bilipublish/internal/application"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

type publishFixture struct {
	vault     *mockVault
	upstream  *mockUpstream
	artifacts *mockArtifacts
	tasks     *mockTasks
	svc       *application.PublishService
}

func newPublishFixture() *publishFixture {
	f := &publishFixture{
		vault:     newMockVault(),
		upstream:  &mockUpstream{},
		artifacts: newMockArtifacts(),
		tasks:     newMockTasks(),
	}
	rec := application.NewReconciler(f.vault, f.upstream, f.artifacts, application.ReconcilerConfig{}, discardLogger())
	f.svc = application.NewPublishService(f.upstream, rec, f.vault, f.tasks, discardLogger())
	return f
}

// loggedIn seeds a live credential for account 42.
func (f *publishFixture) loggedIn() {
	f.vault.put("42", "alice", `{"cookie_info":"x"}`)
	f.artifacts.put("data/42.json", []byte(`{"cookie_info":"x"}`))
}

func validRequest() model.PublishRequest {
	return model.PublishRequest{
		UserID:    "42",
		VideoPath: "/data/videos/abc_video.mp4",
		Title:     "My <b>first</b> video",
		Desc:      "Fish &amp; chips",
		Tag:       "go, 编程，,tests",
		Tid:       171,
	}
}

func TestPublishService_Publish(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()

	res, err := f.svc.Publish(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.TaskID)
	assert.Equal(t, model.PublishStatusProcessing, res.Status)
	assert.Equal(t, "publish task submitted", res.Message)

	require.Len(t, f.upstream.submitted, 1)
	spec := f.upstream.submitted[0]
	assert.Equal(t, "My first video", spec.Title)
	assert.Equal(t, "Fish & chips", spec.Desc)
	assert.Equal(t, []string{"go", "编程", "tests"}, spec.Tags)
	assert.Equal(t, model.CopyrightOriginal, spec.Copyright)
	assert.Equal(t, "data/42.json", spec.CredentialPath)
	assert.Nil(t, spec.Dtime)

	task, err := f.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "42", task.AccountID)
	assert.Nil(t, task.CompletedAt)

	// Publishing probes the credential against the platform first.
	assert.Equal(t, 1, f.upstream.profiles)
}

func TestPublishService_PublishReprintKeepsSourceAndSchedule(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()

	req := validRequest()
	req.Copyright = model.CopyrightReprint
	req.Source = "https://example.com/original"
	req.Dtime = time.Now().Add(4 * time.Hour).Unix()

	_, err := f.svc.Publish(context.Background(), req)
	require.NoError(t, err)

	spec := f.upstream.submitted[0]
	assert.Equal(t, "https://example.com/original", spec.Source)
	require.NotNil(t, spec.Dtime)
	assert.Equal(t, req.Dtime, *spec.Dtime)
}

func TestPublishService_PublishValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.PublishRequest)
	}{
		{"missing user", func(r *model.PublishRequest) { r.UserID = " " }},
		{"missing video", func(r *model.PublishRequest) { r.VideoPath = "" }},
		{"markup only title", func(r *model.PublishRequest) { r.Title = "<script></script>" }},
		{"zero tid", func(r *model.PublishRequest) { r.Tid = 0 }},
		{"bad copyright", func(r *model.PublishRequest) { r.Copyright = 3 }},
		{"reprint without source", func(r *model.PublishRequest) { r.Copyright = model.CopyrightReprint }},
		{"only separators in tag", func(r *model.PublishRequest) { r.Tag = " ,，, " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPublishFixture()
			f.loggedIn()
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.Publish(context.Background(), req)
			assert.ErrorIs(t, err, model.ErrInvalidRequest)
			assert.Empty(t, f.upstream.submitted)
		})
	}
}

func TestPublishService_PublishWithoutCredential(t *testing.T) {
	f := newPublishFixture()

	_, err := f.svc.Publish(context.Background(), validRequest())
	assert.ErrorIs(t, err, model.ErrCredentialExpired)
	assert.True(t, model.NeedsRelogin(err))
	assert.Empty(t, f.upstream.submitted)
}

func TestPublishService_PublishRejectedCredential(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.profile = func(string) (*model.Profile, error) {
		return nil, model.ErrCredentialRejected
	}

	_, err := f.svc.Publish(context.Background(), validRequest())
	assert.ErrorIs(t, err, model.ErrCredentialExpired)
	assert.False(t, f.vault.has("42"))
	assert.Empty(t, f.upstream.submitted)
}

func TestPublishService_PublishImmediateCookieExpired(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.submit = func(model.JobSpec) (*model.JobSubmission, error) {
		return &model.JobSubmission{State: "登录失败,请检查cookie"}, nil
	}

	res, err := f.svc.Publish(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusCookieExpired, res.Status)
	assert.False(t, f.vault.has("42"))

	task, err := f.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.NotNil(t, task.CompletedAt)
}

func TestPublishService_StatusRefreshesFromUpstream(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.submit = func(model.JobSpec) (*model.JobSubmission, error) {
		return &model.JobSubmission{JobID: "job-9"}, nil
	}
	f.upstream.query = func(string) (*model.JobState, error) {
		return &model.JobState{State: "已完成"}, nil
	}

	res, err := f.svc.Publish(context.Background(), validRequest())
	require.NoError(t, err)

	status, err := f.svc.Status(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusCompleted, status.Status)
	assert.Equal(t, "publish completed", status.Message)
	assert.Equal(t, []string{"job-9"}, f.upstream.queried)

	// Terminal tasks are answered from the store.
	again, err := f.svc.Status(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusCompleted, again.Status)
	assert.Len(t, f.upstream.queried, 1)
}

func TestPublishService_StatusFallsBackToTaskID(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.query = func(string) (*model.JobState, error) {
		return &model.JobState{}, nil
	}

	res, err := f.svc.Publish(context.Background(), validRequest())
	require.NoError(t, err)

	status, err := f.svc.Status(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusProcessing, status.Status)
	assert.Equal(t, []string{res.TaskID}, f.upstream.queried)
}

func TestPublishService_StatusUnknownTask(t *testing.T) {
	f := newPublishFixture()

	res, err := f.svc.Status(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusTaskNotFound, res.Status)
}

func TestPublishService_StatusRestoresArtifact(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.query = func(string) (*model.JobState, error) {
		return &model.JobState{State: "进行中"}, nil
	}

	res, err := f.svc.Publish(context.Background(), validRequest())
	require.NoError(t, err)

	// The upstream lost its copy; the status check writes it back.
	require.NoError(t, f.artifacts.Remove(context.Background(), "data/42.json"))
	status, err := f.svc.Status(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.PublishStatusProcessing, status.Status)
	assert.Equal(t, "video uploading", status.Message)

	ok, _ := f.artifacts.Exists(context.Background(), "data/42.json")
	assert.True(t, ok)
}

func TestPublishService_UserInfo(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.profile = func(string) (*model.Profile, error) {
		return &model.Profile{MID: 42, Name: "alice-renamed", Level: 5}, nil
	}

	profile, err := f.svc.UserInfo(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "alice-renamed", profile.Name)

	rec, err := f.vault.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "alice-renamed", rec.DisplayName)
}

func TestPublishService_UserInfoRejected(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	f.upstream.profile = func(string) (*model.Profile, error) {
		return nil, model.ErrCredentialRejected
	}

	_, err := f.svc.UserInfo(context.Background(), "42")
	assert.ErrorIs(t, err, model.ErrCredentialExpired)
	assert.False(t, f.vault.has("42"))
}

func TestPublishService_ListTasks(t *testing.T) {
	f := newPublishFixture()
	f.loggedIn()
	for range 3 {
		_, err := f.svc.Publish(context.Background(), validRequest())
		require.NoError(t, err)
	}

	tasks, err := f.svc.ListTasks(context.Background(), "42", 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	tasks, err = f.svc.ListTasks(context.Background(), "42", 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = f.svc.ListTasks(context.Background(), "7", 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
