// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

// UpstreamClient defines the driven port for the upload-automation service.
// Every method except Authenticate and HealthCheck runs inside an
// authenticate-and-retry envelope: an authorization failure triggers one
// re-authentication and one retry before model.ErrUpstreamAuth is returned.
type UpstreamClient interface {
	// Authenticate performs the service-account handshake eagerly.
	Authenticate(ctx context.Context) error

	// IssueQrCode requests a new login QR code and returns the decoded body.
	// The shape is not stable across upstream versions.
	IssueQrCode(ctx context.Context) (map[string]any, error)

	// ConfirmQrLogin blocks until the QR login identified by authCode
	// completes or times out (up to 300 seconds on the upstream side).
	ConfirmQrLogin(ctx context.Context, authCode string) (model.ConfirmResult, error)

	// FetchProfile loads the platform profile of the account whose credential
	// artifact lives at credentialPath. It doubles as a liveness probe.
	FetchProfile(ctx context.Context, credentialPath string) (*model.Profile, error)

	// RegisterCredentialPath tells the upstream where a credential artifact
	// lives. Best-effort: failures are logged by the adapter.
	RegisterCredentialPath(ctx context.Context, credentialPath string)

	// SubmitJob submits a publish job.
	SubmitJob(ctx context.Context, spec model.JobSpec) (*model.JobSubmission, error)

	// QueryJob returns the raw upstream state of a job.
	QueryJob(ctx context.Context, jobID string) (*model.JobState, error)

	// HealthCheck reports whether the upstream answers. It never errors.
	HealthCheck(ctx context.Context) bool
}
