package application

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
	"github.com/ericfisherdev/bilipublish/internal/metrics"
)

const (
	defaultTaskListLimit = 20
	maxTaskListLimit     = 100
)

// PublishService submits publish jobs and tracks them locally, since the
// upstream acknowledges submissions without a job id.
type PublishService struct {
	upstream   driven.UpstreamClient
	reconciler *Reconciler
	vault      driven.CredentialVault
	tasks      driven.PublishTaskStore
	validate   *validator.Validate
	policy     *bluemonday.Policy
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger
}

// NewPublishService creates a PublishService.
func NewPublishService(
	upstream driven.UpstreamClient,
	reconciler *Reconciler,
	vault driven.CredentialVault,
	tasks driven.PublishTaskStore,
	logger *slog.Logger,
) *PublishService {
	return &PublishService{
		upstream:   upstream,
		reconciler: reconciler,
		vault:      vault,
		tasks:      tasks,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		policy:     bluemonday.StrictPolicy(),
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     logger,
	}
}

// Publish validates req, makes sure the account's credential is live on
// the platform and submits the job.
func (s *PublishService) Publish(ctx context.Context, req model.PublishRequest) (*model.PublishResult, error) {
	req.Title = s.clean(req.Title)
	req.Desc = s.clean(req.Desc)
	req.Dynamic = s.clean(req.Dynamic)
	req.UserID = strings.TrimSpace(req.UserID)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidRequest, describeValidation(err))
	}
	tags := splitTags(req.Tag)
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: tag must contain at least one non-empty tag", model.ErrInvalidRequest)
	}

	if err := s.reconciler.EnsureReady(ctx, req.UserID, ProbeForce); err != nil {
		return nil, err
	}

	spec := buildJobSpec(req, tags)
	sub, err := s.upstream.SubmitJob(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("submit publish job: %w", err)
	}

	task := model.PublishTask{
		TaskID:        s.newID(),
		AccountID:     req.UserID,
		UpstreamJobID: sub.JobID,
		VideoPath:     req.VideoPath,
		Title:         req.Title,
		Status:        model.PublishStatusProcessing,
		Message:       "publish task submitted",
		SubmittedAt:   s.now().UTC(),
	}
	if sub.State != "" {
		task.Status, task.Message = MapPublishStatus(sub.State)
	}
	if task.Status.IsTerminal() {
		completed := task.SubmittedAt
		task.CompletedAt = &completed
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("record publish task: %w", err)
	}
	s.onStatus(ctx, task)

	metrics.PublishSubmissions.WithLabelValues(string(task.Status)).Inc()
	s.logger.Info("publish job submitted", "task_id", task.TaskID, "account_id", task.AccountID, "status", task.Status)
	return &model.PublishResult{TaskID: task.TaskID, Status: task.Status, Message: task.Message}, nil
}

// Status refreshes a task from the upstream unless it already finished.
func (s *PublishService) Status(ctx context.Context, taskID string) (*model.PublishResult, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if errors.Is(err, model.ErrNotFound) {
		return &model.PublishResult{TaskID: taskID, Status: model.PublishStatusTaskNotFound, Message: "task not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load publish task: %w", err)
	}
	if task.Status.IsTerminal() {
		return &model.PublishResult{TaskID: task.TaskID, Status: task.Status, Message: task.Message}, nil
	}

	if err := s.reconciler.EnsureReady(ctx, task.AccountID, ProbeSkip); err != nil {
		return nil, err
	}

	jobID := task.UpstreamJobID
	if jobID == "" {
		jobID = task.TaskID
	}
	state, err := s.upstream.QueryJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("query publish job: %w", err)
	}

	task.Status, task.Message = MapPublishStatus(state.State)
	if task.Status.IsTerminal() {
		completed := s.now().UTC()
		task.CompletedAt = &completed
	}
	if err := s.tasks.UpdateStatus(ctx, *task); err != nil {
		s.logger.Warn("update publish task failed", "task_id", task.TaskID, "error", err)
	}
	s.onStatus(ctx, *task)

	return &model.PublishResult{TaskID: task.TaskID, Status: task.Status, Message: task.Message}, nil
}

// onStatus reacts to statuses that reveal the credential is gone.
func (s *PublishService) onStatus(ctx context.Context, task model.PublishTask) {
	if task.Status != model.PublishStatusCookieExpired {
		return
	}
	s.logger.Warn("upstream reports expired credential, deleting vault record", "account_id", task.AccountID)
	if err := s.vault.Delete(ctx, task.AccountID); err != nil {
		s.logger.Error("delete vault credential failed", "account_id", task.AccountID, "error", err)
	}
}

// UserInfo returns the platform profile of accountID.
func (s *PublishService) UserInfo(ctx context.Context, accountID string) (*model.Profile, error) {
	if err := s.reconciler.EnsureReady(ctx, accountID, ProbeSkip); err != nil {
		return nil, err
	}

	profile, err := s.upstream.FetchProfile(ctx, model.CredentialPath(accountID))
	if err != nil {
		if errors.Is(err, model.ErrCredentialRejected) {
			if delErr := s.vault.Delete(ctx, accountID); delErr != nil {
				s.logger.Error("delete vault credential failed", "account_id", accountID, "error", delErr)
			}
			return nil, fmt.Errorf("user info for %s: %w: %w", accountID, model.ErrCredentialExpired, err)
		}
		return nil, fmt.Errorf("user info for %s: %w", accountID, err)
	}

	if profile.Name != "" {
		if err := s.vault.UpdateDisplayName(ctx, accountID, profile.Name); err != nil {
			s.logger.Warn("refresh display name failed", "account_id", accountID, "error", err)
		}
	}
	return profile, nil
}

// ListTasks returns recent tasks for accountID, newest first.
func (s *PublishService) ListTasks(ctx context.Context, accountID string, limit int) ([]model.PublishTask, error) {
	if limit <= 0 {
		limit = defaultTaskListLimit
	}
	limit = min(limit, maxTaskListLimit)

	tasks, err := s.tasks.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list publish tasks: %w", err)
	}
	return tasks, nil
}

// clean strips markup and decodes entities so the platform receives plain text.
func (s *PublishService) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func buildJobSpec(req model.PublishRequest, tags []string) model.JobSpec {
	spec := model.JobSpec{
		Files:            []string{req.VideoPath},
		Title:            req.Title,
		Tid:              req.Tid,
		Copyright:        req.Copyright,
		Source:           req.Source,
		Tags:             tags,
		Desc:             req.Desc,
		Dynamic:          req.Dynamic,
		Cover:            req.CoverPath,
		Dolby:            req.Dolby,
		OpenSubtitle:     deref(req.OpenSubtitle),
		UpSelectionReply: deref(req.UpSelectionReply),
		UpCloseReply:     deref(req.UpCloseReply),
		UpCloseDanmu:     deref(req.UpCloseDanmu),
		CredentialPath:   model.CredentialPath(req.UserID),
	}
	if spec.Copyright == 0 {
		spec.Copyright = model.CopyrightOriginal
	}
	if spec.Copyright == model.CopyrightOriginal {
		spec.Source = ""
	}
	if req.Dtime > 0 {
		dtime := req.Dtime
		spec.Dtime = &dtime
	}
	return spec
}

// splitTags splits on ASCII and full-width commas.
func splitTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '，' })
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimSpace(f); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func deref(b *bool) bool {
	return b != nil && *b
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
