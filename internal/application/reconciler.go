// Package application implements the login, publish and media use cases.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
	"github.com/ericfisherdev/bilipublish/internal/metrics"
)

// ProbeMode selects whether EnsureReady checks the credential against the
// platform.
type ProbeMode int

const (
	// ProbeSkip trusts a present artifact.
	ProbeSkip ProbeMode = iota
	// ProbeForce always runs the FetchProfile liveness probe. Used before
	// every publish.
	ProbeForce
)

// ReconcilerConfig tunes how long a fresh login waits for the upstream to
// write the credential artifact.
type ReconcilerConfig struct {
	ArtifactWaitAttempts int
	ArtifactWaitInterval time.Duration
}

var errArtifactPending = errors.New("credential artifact not yet present")

// Reconciler keeps the upstream's credential cache in step with the vault.
// The vault is the source of truth; the artifact can always be rebuilt.
type Reconciler struct {
	vault     driven.CredentialVault
	upstream  driven.UpstreamClient
	artifacts driven.ArtifactStore
	cfg       ReconcilerConfig
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	vault driven.CredentialVault,
	upstream driven.UpstreamClient,
	artifacts driven.ArtifactStore,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *Reconciler {
	if cfg.ArtifactWaitAttempts < 0 {
		cfg.ArtifactWaitAttempts = 0
	}
	return &Reconciler{
		vault:     vault,
		upstream:  upstream,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger,
	}
}

// EnsureReady guarantees that the upstream holds a usable credential for
// accountID. Failures that require a new login wrap model.ErrCredentialExpired.
func (r *Reconciler) EnsureReady(ctx context.Context, accountID string, mode ProbeMode) error {
	valid, err := r.vault.IsValid(ctx, accountID)
	if err != nil {
		return fmt.Errorf("check credential for %s: %w", accountID, err)
	}
	if !valid {
		metrics.ReconcileTotal.WithLabelValues("expired").Inc()
		return fmt.Errorf("account %s: %w", accountID, model.ErrCredentialExpired)
	}

	path := model.CredentialPath(accountID)
	present, err := r.artifacts.Exists(ctx, path)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("recovery_failed").Inc()
		return fmt.Errorf("probe artifact %s: %w: %w", path, model.ErrRecoveryFailed, err)
	}

	if !present {
		if err := r.restore(ctx, accountID, path); err != nil {
			return err
		}
	}

	if mode == ProbeForce {
		if err := r.probe(ctx, accountID, path); err != nil {
			return err
		}
	}

	metrics.ReconcileTotal.WithLabelValues("ready").Inc()
	return nil
}

// restore rebuilds a missing artifact from the vault.
func (r *Reconciler) restore(ctx context.Context, accountID, path string) error {
	raw, err := r.vault.Load(ctx, accountID)
	if err != nil {
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			return fmt.Errorf("restore credential for %s: %w", accountID, err)
		}
		r.deleteRecord(ctx, accountID, "unreadable credential")
		metrics.ReconcileTotal.WithLabelValues("expired").Inc()
		return fmt.Errorf("restore credential for %s: %w: %w", accountID, model.ErrCredentialExpired, err)
	}

	if err := r.artifacts.Write(ctx, path, []byte(raw)); err != nil {
		metrics.ReconcileTotal.WithLabelValues("recovery_failed").Inc()
		return fmt.Errorf("write artifact %s: %w: %w", path, model.ErrRecoveryFailed, err)
	}
	r.upstream.RegisterCredentialPath(ctx, path)

	metrics.ReconcileTotal.WithLabelValues("restored").Inc()
	r.logger.Info("credential artifact restored from vault", "account_id", accountID)
	return nil
}

// probe checks the credential against the platform. Transport and service
// auth failures say nothing about the credential and leave the vault alone.
func (r *Reconciler) probe(ctx context.Context, accountID, path string) error {
	profile, err := r.upstream.FetchProfile(ctx, path)
	if err != nil {
		if errors.Is(err, model.ErrUpstreamUnavailable) ||
			errors.Is(err, model.ErrUpstreamAuth) ||
			ctx.Err() != nil {
			return fmt.Errorf("liveness probe for %s: %w", accountID, err)
		}
		r.deleteRecord(ctx, accountID, "credential refused by platform")
		if rmErr := r.artifacts.Remove(ctx, path); rmErr != nil {
			r.logger.Warn("remove stale artifact failed", "account_id", accountID, "error", rmErr)
		}
		metrics.ReconcileTotal.WithLabelValues("revoked").Inc()
		return fmt.Errorf("liveness probe for %s: %w: %w", accountID, model.ErrCredentialExpired, err)
	}

	r.refreshDisplayName(ctx, accountID, profile.Name)
	return nil
}

func (r *Reconciler) refreshDisplayName(ctx context.Context, accountID, name string) {
	if name == "" {
		return
	}
	rec, err := r.vault.Get(ctx, accountID)
	if err != nil || rec.DisplayName == name {
		return
	}
	if err := r.vault.UpdateDisplayName(ctx, accountID, name); err != nil {
		r.logger.Warn("refresh display name failed", "account_id", accountID, "error", err)
	}
}

func (r *Reconciler) deleteRecord(ctx context.Context, accountID, reason string) {
	r.logger.Warn("deleting vault credential", "account_id", accountID, "reason", reason)
	if err := r.vault.Delete(ctx, accountID); err != nil {
		r.logger.Error("delete vault credential failed", "account_id", accountID, "error", err)
	}
}

// PersistFreshLogin stores a just-confirmed login. The upstream may write
// the artifact asynchronously, so its appearance is awaited for a bounded
// number of attempts; if it never appears the vault write is skipped and
// the login still counts as successful. It returns the best known display
// name.
func (r *Reconciler) PersistFreshLogin(ctx context.Context, login model.FreshLogin) (string, error) {
	path := login.CredentialPath
	if path == "" {
		path = model.CredentialPath(login.AccountID)
	}

	if len(login.InlineCredential) > 0 {
		present, err := r.artifacts.Exists(ctx, path)
		if err == nil && !present {
			err = r.artifacts.Write(ctx, path, login.InlineCredential)
		}
		if err != nil {
			r.logger.Warn("write fresh credential artifact failed", "account_id", login.AccountID, "error", err)
		}
	}
	r.upstream.RegisterCredentialPath(ctx, path)

	if err := r.awaitArtifact(ctx, path); err != nil {
		if errors.Is(err, errArtifactPending) {
			metrics.ReconcileTotal.WithLabelValues("persist_skipped").Inc()
			r.logger.Warn("credential artifact never appeared, vault write skipped",
				"account_id", login.AccountID, "path", path)
			return login.DisplayName, nil
		}
		return login.DisplayName, fmt.Errorf("await artifact %s: %w", path, err)
	}

	raw, err := r.artifacts.Read(ctx, path)
	if err != nil {
		return login.DisplayName, fmt.Errorf("read artifact %s: %w: %w", path, model.ErrRecoveryFailed, err)
	}

	name := login.DisplayName
	if name == "" {
		if profile, err := r.upstream.FetchProfile(ctx, path); err != nil {
			r.logger.Warn("fetch profile after login failed", "account_id", login.AccountID, "error", err)
		} else {
			name = profile.Name
		}
	}

	if err := r.vault.Save(ctx, login.AccountID, name, string(raw)); err != nil {
		return name, fmt.Errorf("persist credential for %s: %w", login.AccountID, err)
	}
	metrics.ReconcileTotal.WithLabelValues("persisted").Inc()
	r.logger.Info("credential persisted", "account_id", login.AccountID)
	return name, nil
}

// awaitArtifact checks for path once, then retries at a constant interval.
// It returns errArtifactPending when the attempts run out.
func (r *Reconciler) awaitArtifact(ctx context.Context, path string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.ArtifactWaitInterval), uint64(r.cfg.ArtifactWaitAttempts)),
		ctx,
	)
	return backoff.Retry(func() error {
		present, err := r.artifacts.Exists(ctx, path)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !present {
			return errArtifactPending
		}
		return nil
	}, policy)
}
