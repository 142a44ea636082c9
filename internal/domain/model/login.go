package model

import "time"

// LoginState is the canonical QR login state exposed to callers.
type LoginState string

const (
	LoginStateWaiting   LoginState = "WAITING"
	LoginStateScanned   LoginState = "SCANNED"
	LoginStateConfirmed LoginState = "CONFIRMED"
	LoginStateExpired   LoginState = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s LoginState) IsTerminal() bool {
	return s == LoginStateConfirmed || s == LoginStateExpired
}

// rank orders the non-terminal progression WAITING < SCANNED < terminal.
func (s LoginState) rank() int {
	switch s {
	case LoginStateWaiting:
		return 0
	case LoginStateScanned:
		return 1
	case LoginStateConfirmed, LoginStateExpired:
		return 2
	default:
		return -1
	}
}

// Advance returns the state reached when next is observed while in s.
// Terminal states never change and progress never moves backwards.
func (s LoginState) Advance(next LoginState) LoginState {
	if s.IsTerminal() || next.rank() < s.rank() {
		return s
	}
	return next
}

// QRCode is a freshly issued login QR code.
type QRCode struct {
	URL      string
	LoginKey string
}

// LoginSession tracks one QR login attempt between issue and a terminal state.
type LoginSession struct {
	LoginKey    string
	URL         string
	State       LoginState
	AccountID   string
	DisplayName string
	IssuedAt    time.Time
	UpdatedAt   time.Time
}

// LoginResult is the outcome reported for a login attempt or status check.
type LoginResult struct {
	State       LoginState
	Message     string
	AccountID   string
	DisplayName string
}

// ConfirmKind tags the outcome of the blocking upstream confirm call.
type ConfirmKind int

const (
	// ConfirmUnrecognized means the upstream answered with a shape that is
	// neither a credential nor an explicit timeout.
	ConfirmUnrecognized ConfirmKind = iota
	// ConfirmCredential means the upstream returned a credential artifact path.
	ConfirmCredential
	// ConfirmUpstreamTimeout means the upstream itself reported the QR code timed out.
	ConfirmUpstreamTimeout
	// ConfirmTransportTimeout means our own HTTP call timed out before the upstream answered.
	ConfirmTransportTimeout
)

// String returns a log-friendly name.
func (k ConfirmKind) String() string {
	switch k {
	case ConfirmCredential:
		return "credential"
	case ConfirmUpstreamTimeout:
		return "upstream_timeout"
	case ConfirmTransportTimeout:
		return "transport_timeout"
	default:
		return "unrecognized"
	}
}

// ConfirmResult is the tagged result of ConfirmQrLogin on the upstream client.
type ConfirmResult struct {
	Kind ConfirmKind
	// CredentialPath is set for ConfirmCredential, e.g. "data/42.json".
	CredentialPath string
	// InlineCredential carries the raw credential when the upstream embeds it
	// in the response instead of only writing the artifact.
	InlineCredential []byte
	// Payload is the decoded response body, kept for shape probing.
	Payload map[string]any
}

// FreshLogin describes a credential obtained by a just-confirmed QR login.
type FreshLogin struct {
	AccountID        string
	DisplayName      string
	CredentialPath   string
	InlineCredential []byte
}
