package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
	"github.com/ericfisherdev/bilipublish/internal/metrics"
)

const maxLoginSessions = 1024

// persistTimeout bounds persisting a confirmed login once it no longer
// follows the caller's context.
const persistTimeout = 2 * time.Minute

var stateMessages = map[model.LoginState]string{
	model.LoginStateWaiting:   "waiting for scan",
	model.LoginStateScanned:   "scanned, waiting for confirmation",
	model.LoginStateConfirmed: "login succeeded",
	model.LoginStateExpired:   "QR code expired, please request a new one",
}

// LoginService drives the QR login state machine.
type LoginService struct {
	upstream   driven.UpstreamClient
	reconciler *Reconciler
	vault      driven.CredentialVault
	artifacts  driven.ArtifactStore
	sessions   *expirable.LRU[string, model.LoginSession]
	now        func() time.Time
	logger     *slog.Logger
}

// NewLoginService creates a LoginService. Login sessions are forgotten
// sessionTTL after they were last touched.
func NewLoginService(
	upstream driven.UpstreamClient,
	reconciler *Reconciler,
	vault driven.CredentialVault,
	artifacts driven.ArtifactStore,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		upstream:   upstream,
		reconciler: reconciler,
		vault:      vault,
		artifacts:  artifacts,
		sessions:   expirable.NewLRU[string, model.LoginSession](maxLoginSessions, nil, sessionTTL),
		now:        time.Now,
		logger:     logger,
	}
}

// IssueQrCode starts a fresh WAITING session.
func (s *LoginService) IssueQrCode(ctx context.Context) (*model.QRCode, error) {
	payload, err := s.upstream.IssueQrCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue qr code: %w", err)
	}

	url, okURL := extractString(payload, qrURLFields...)
	key, okKey := extractString(payload, qrKeyFields...)
	if !okURL || !okKey {
		s.logger.Error("qr code response has no url or key", "keys", topLevelKeys(payload))
		return nil, fmt.Errorf("issue qr code: missing url or login key: %w", model.ErrUpstreamProtocol)
	}

	now := s.now()
	s.sessions.Add(key, model.LoginSession{
		LoginKey:  key,
		URL:       url,
		State:     model.LoginStateWaiting,
		IssuedAt:  now,
		UpdatedAt: now,
	})
	return &model.QRCode{URL: url, LoginKey: key}, nil
}

// ConfirmQrLogin blocks on the upstream confirm call for loginKey and
// resolves the session. A session that already reached a terminal state
// is answered from memory.
func (s *LoginService) ConfirmQrLogin(ctx context.Context, loginKey string) (*model.LoginResult, error) {
	if loginKey == "" {
		return nil, fmt.Errorf("login key is required: %w", model.ErrInvalidRequest)
	}

	session, tracked := s.sessions.Get(loginKey)
	if tracked && session.State.IsTerminal() {
		return resultFor(session), nil
	}

	confirm, err := s.upstream.ConfirmQrLogin(ctx, loginKey)
	if err != nil {
		return nil, fmt.Errorf("confirm qr login: %w", err)
	}

	result, err := s.resolve(ctx, confirm)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		s.record(loginKey, session, tracked, &model.LoginResult{State: model.LoginStateExpired})
		return nil, err
	}

	s.record(loginKey, session, tracked, result)
	metrics.LoginResults.WithLabelValues(string(result.State)).Inc()
	s.logger.Info("qr login resolved", "state", result.State, "kind", confirm.Kind.String(), "account_id", result.AccountID)
	return result, nil
}

func (s *LoginService) resolve(ctx context.Context, confirm model.ConfirmResult) (*model.LoginResult, error) {
	switch confirm.Kind {
	case model.ConfirmCredential:
		accountID := model.AccountIDFromPath(confirm.CredentialPath)
		if !model.ValidAccountID(accountID) {
			s.logger.Warn("confirm returned an unusable account id", "path", confirm.CredentialPath)
			return expired(), nil
		}
		return s.confirmed(ctx, model.FreshLogin{
			AccountID:        accountID,
			DisplayName:      firstString(confirm.Payload, displayNameFields...),
			CredentialPath:   confirm.CredentialPath,
			InlineCredential: confirm.InlineCredential,
		})

	case model.ConfirmUpstreamTimeout:
		return expired(), nil

	case model.ConfirmTransportTimeout:
		return &model.LoginResult{State: model.LoginStateExpired, Message: "login confirmation timed out"}, nil
	}

	// Coarse progress shapes from other upstream versions.
	switch state := MapPollState(confirm.Payload); {
	case state == model.LoginStateConfirmed:
		accountID, ok := extractString(confirm.Payload, accountIDFields...)
		if !ok || !model.ValidAccountID(accountID) {
			return expired(), nil
		}
		return s.confirmed(ctx, model.FreshLogin{
			AccountID:        accountID,
			DisplayName:      firstString(confirm.Payload, displayNameFields...),
			InlineCredential: extractCredential(confirm.Payload),
		})
	case state != model.LoginStateExpired && hasProgressFields(confirm.Payload):
		return &model.LoginResult{State: state, Message: stateMessages[state]}, nil
	default:
		return expired(), nil
	}
}

// confirmed persists a login the upstream has already accepted. It runs on a
// detached context so a caller giving up at the last moment does not lose a
// live credential.
func (s *LoginService) confirmed(ctx context.Context, login model.FreshLogin) (*model.LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	name, err := s.reconciler.PersistFreshLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("persist login for %s: %w", login.AccountID, err)
	}
	return &model.LoginResult{
		State:       model.LoginStateConfirmed,
		Message:     stateMessages[model.LoginStateConfirmed],
		AccountID:   login.AccountID,
		DisplayName: name,
	}, nil
}

// record advances the tracked session. Terminal states are sticky.
func (s *LoginService) record(loginKey string, session model.LoginSession, tracked bool, result *model.LoginResult) {
	now := s.now()
	if !tracked {
		session = model.LoginSession{LoginKey: loginKey, State: model.LoginStateWaiting, IssuedAt: now}
	}
	next := session.State.Advance(result.State)
	if next != session.State && next == result.State {
		session.AccountID = result.AccountID
		session.DisplayName = result.DisplayName
	}
	session.State = next
	session.UpdatedAt = now
	s.sessions.Add(loginKey, session)
}

// PollLoginState reports the tracked state for loginKey without calling
// the upstream.
func (s *LoginService) PollLoginState(_ context.Context, loginKey string) (*model.LoginResult, error) {
	session, ok := s.sessions.Get(loginKey)
	if !ok {
		return nil, fmt.Errorf("login session %q: %w", loginKey, model.ErrNotFound)
	}
	return resultFor(session), nil
}

// CheckLoginStatus reports whether accountID holds a usable credential.
func (s *LoginService) CheckLoginStatus(ctx context.Context, accountID string) (*model.LoginResult, error) {
	rec, err := s.vault.Get(ctx, accountID)
	switch {
	case err == nil:
		return &model.LoginResult{
			State:       model.LoginStateConfirmed,
			Message:     "logged in",
			AccountID:   rec.AccountID,
			DisplayName: rec.DisplayName,
		}, nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrExpired):
		return &model.LoginResult{
			State:     model.LoginStateExpired,
			Message:   "not logged in or credential expired",
			AccountID: accountID,
		}, nil
	default:
		return nil, fmt.Errorf("check login status: %w", err)
	}
}

// Logout forgets the account's credential in the vault and the upstream
// artifact namespace.
func (s *LoginService) Logout(ctx context.Context, accountID string) error {
	if err := s.vault.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("logout %s: %w", accountID, err)
	}
	if err := s.artifacts.Remove(ctx, model.CredentialPath(accountID)); err != nil {
		return fmt.Errorf("logout %s: %w", accountID, err)
	}
	s.logger.Info("account logged out", "account_id", accountID)
	return nil
}

func resultFor(session model.LoginSession) *model.LoginResult {
	return &model.LoginResult{
		State:       session.State,
		Message:     stateMessages[session.State],
		AccountID:   session.AccountID,
		DisplayName: session.DisplayName,
	}
}

func expired() *model.LoginResult {
	return &model.LoginResult{State: model.LoginStateExpired, Message: stateMessages[model.LoginStateExpired]}
}

func firstString(node map[string]any, names ...string) string {
	s, _ := extractString(node, names...)
	return s
}

func topLevelKeys(node map[string]any) []string {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	return keys
}
