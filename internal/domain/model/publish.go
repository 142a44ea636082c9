package model

import "time"

// PublishStatus is the canonical publish job taxonomy.
type PublishStatus string

const (
	PublishStatusCompleted     PublishStatus = "COMPLETED"
	PublishStatusProcessing    PublishStatus = "PROCESSING"
	PublishStatusCookieMissing PublishStatus = "COOKIE_MISSING"
	PublishStatusCookieExpired PublishStatus = "COOKIE_EXPIRED"
	PublishStatusVideoNotFound PublishStatus = "VIDEO_NOT_FOUND"
	PublishStatusTaskNotFound  PublishStatus = "TASK_NOT_FOUND"
	PublishStatusFailed        PublishStatus = "FAILED"
)

// IsTerminal reports whether the job will not change status any more.
func (s PublishStatus) IsTerminal() bool {
	return s != PublishStatusProcessing
}

// Copyright values accepted by the platform.
const (
	CopyrightOriginal = 1
	CopyrightReprint  = 2
)

// PublishRequest is a caller's request to publish an uploaded video.
type PublishRequest struct {
	UserID           string `validate:"required,max=64"`
	VideoPath        string `validate:"required"`
	CoverPath        string
	Title            string `validate:"required,max=80"`
	Desc             string `validate:"required,max=2000"`
	Tag              string `validate:"required"`
	Tid              int    `validate:"required,gt=0"`
	Copyright        int    `validate:"omitempty,oneof=1 2"`
	Source           string `validate:"required_if=Copyright 2"`
	Dynamic          string `validate:"max=233"`
	Dtime            int64  `validate:"omitempty,gt=0"`
	Dolby            *int   `validate:"omitempty,oneof=0 1"`
	OpenSubtitle     *bool
	UpSelectionReply *bool
	UpCloseReply     *bool
	UpCloseDanmu     *bool
}

// JobSpec is the normalized job submitted to the upstream.
type JobSpec struct {
	Files            []string
	Title            string
	Tid              int
	Copyright        int
	Source           string
	Tags             []string
	Desc             string
	Dynamic          string
	Cover            string
	Dtime            *int64
	Dolby            *int
	OpenSubtitle     bool
	UpSelectionReply bool
	UpCloseReply     bool
	UpCloseDanmu     bool
	CredentialPath   string
}

// JobSubmission is what the upstream returned for a submitted job. Both
// fields may be empty: the upstream commonly answers with an empty object.
type JobSubmission struct {
	JobID string
	State string
}

// JobState is the raw upstream state of a job.
type JobState struct {
	JobID string
	State string
}

// PublishTask is the locally tracked record of a submitted publish job.
type PublishTask struct {
	TaskID        string
	AccountID     string
	UpstreamJobID string
	VideoPath     string
	Title         string
	Status        PublishStatus
	Message       string
	SubmittedAt   time.Time
	CompletedAt   *time.Time
}

// PublishResult is the canonical answer for publish and status calls.
type PublishResult struct {
	TaskID  string
	Status  PublishStatus
	Message string
}

// StoredMedia describes a media file written to shared storage.
type StoredMedia struct {
	VideoPath string
	CoverPath string
	FileName  string
	FileSize  int64
}
