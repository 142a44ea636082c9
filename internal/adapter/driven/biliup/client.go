// Package biliup implements the UpstreamClient port against the biliup
// upload-automation service's REST API.
package biliup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
	"github.com/ericfisherdev/bilipublish/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.UpstreamClient = (*Client)(nil)

// maxBodyBytes caps how much of an upstream response is buffered.
const maxBodyBytes = 8 << 20

// Config holds the connection settings for the upstream service.
type Config struct {
	BaseURL        string
	Username       string
	Password       string
	CookieName     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// ConfirmTimeout is the client-side budget for the blocking QR confirm
	// call. It must exceed the upstream's own 300 second wait.
	ConfirmTimeout time.Duration
	Breaker        BreakerConfig
}

// Client implements driven.UpstreamClient. All calls share one auth session.
type Client struct {
	cfg     Config
	http    *http.Client
	confirm *http.Client
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	session session
	logger  *slog.Logger
}

// NewClient creates a Client. The auth session starts empty and is
// established either by Authenticate or by the first call the upstream
// rejects.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.CookieName == "" {
		cfg.CookieName = "session_id"
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		confirm: &http.Client{Transport: transport, Timeout: cfg.ConfirmTimeout},
		breaker: newBreaker(cfg.Breaker, logger),
		session: session{timeout: handshakeBudget(cfg.RequestTimeout)},
		logger:  logger,
	}
}

// handshakeBudget covers the probe plus the register or login call.
func handshakeBudget(requestTimeout time.Duration) time.Duration {
	return 2 * requestTimeout
}

// rawResponse is a fully buffered upstream answer.
type rawResponse struct {
	status int
	body   []byte
}

// request describes one upstream primitive call.
type request struct {
	op     string
	method string
	path   string
	body   any
	// longPoll routes the call through the confirm client and around the
	// breaker; its status code is left for the caller to interpret.
	longPoll bool
}

// call runs r inside the auth envelope: an authorization-denied answer
// triggers one handshake and exactly one retry.
func (c *Client) call(ctx context.Context, r request) (*rawResponse, error) {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", r.op, err)
		}
	}

	token, gen := c.session.snapshot()
	resp, err := c.send(ctx, r, payload, token)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(r.op, outcome(err)).Inc()
		return nil, err
	}
	if !authDenied(resp.status) {
		return c.finish(r, resp)
	}

	c.logger.Info("upstream denied authorization, re-authenticating", "operation", r.op, "status", resp.status)
	if err := c.session.refresh(ctx, gen, c.handshake); err != nil {
		metrics.UpstreamRequests.WithLabelValues(r.op, "auth_failed").Inc()
		return nil, fmt.Errorf("%s: re-authenticate: %w", r.op, err)
	}

	token, _ = c.session.snapshot()
	resp, err = c.send(ctx, r, payload, token)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(r.op, outcome(err)).Inc()
		return nil, err
	}
	if authDenied(resp.status) {
		metrics.UpstreamRequests.WithLabelValues(r.op, "auth_failed").Inc()
		return nil, fmt.Errorf("%s: HTTP %d after re-authentication: %w", r.op, resp.status, model.ErrUpstreamAuth)
	}
	metrics.UpstreamRequests.WithLabelValues(r.op, "auth_retry").Inc()
	return c.finish(r, resp)
}

func (c *Client) finish(r request, resp *rawResponse) (*rawResponse, error) {
	if !r.longPoll && resp.status >= http.StatusBadRequest {
		metrics.UpstreamRequests.WithLabelValues(r.op, "error").Inc()
		return nil, fmt.Errorf("%s: HTTP %d: %w", r.op, resp.status, model.ErrUpstreamProtocol)
	}
	metrics.UpstreamRequests.WithLabelValues(r.op, "success").Inc()
	return resp, nil
}

// send performs a single HTTP exchange, through the breaker unless the
// request is a long poll.
func (c *Client) send(ctx context.Context, r request, payload []byte, token string) (*rawResponse, error) {
	if r.longPoll {
		return c.roundTrip(ctx, c.confirm, r, payload, token)
	}

	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		resp, err := c.roundTrip(ctx, c.http, r, payload, token)
		if err != nil {
			return nil, err
		}
		if resp.status >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errServerStatus):
		return nil, fmt.Errorf("%s: HTTP %d: %w", r.op, resp.status, model.ErrUpstreamUnavailable)
	case isBreakerRejection(err):
		return nil, fmt.Errorf("%s: %w: %w", r.op, model.ErrUpstreamUnavailable, err)
	default:
		return nil, err
	}
}

func (c *Client) roundTrip(ctx context.Context, client *http.Client, r request, payload []byte, token string) (*rawResponse, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.cfg.BaseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", r.op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Cookie", token)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", r.op, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w: %w", r.op, model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %w", r.op, model.ErrUpstreamUnavailable, err)
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

func authDenied(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func outcome(err error) string {
	if errors.Is(err, model.ErrUpstreamUnavailable) {
		return "unavailable"
	}
	return "error"
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Authenticate establishes the upstream session eagerly.
func (c *Client) Authenticate(ctx context.Context) error {
	_, gen := c.session.snapshot()
	if err := c.session.refresh(ctx, gen, c.handshake); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	return nil
}

// IssueQrCode requests a login QR code.
func (c *Client) IssueQrCode(ctx context.Context) (map[string]any, error) {
	resp, err := c.call(ctx, request{op: "issue_qrcode", method: http.MethodGet, path: "/v1/get_qrcode"})
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(resp.body)
	if err != nil {
		return nil, fmt.Errorf("issue_qrcode: %w", err)
	}
	return obj, nil
}

// ConfirmQrLogin blocks until the upstream resolves the QR login. A local
// transport timeout is reported as ConfirmTransportTimeout rather than an
// error; cancellation by the caller is returned as the context error.
func (c *Client) ConfirmQrLogin(ctx context.Context, authCode string) (model.ConfirmResult, error) {
	body := map[string]any{
		"code":    0,
		"data":    map[string]any{"auth_code": authCode},
		"message": "",
		"ttl":     1,
	}

	resp, err := c.call(ctx, request{
		op: "confirm_qrcode", method: http.MethodPost, path: "/v1/login_by_qrcode",
		body: body, longPoll: true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.ConfirmResult{}, ctxErr
		}
		if isTimeout(err) {
			c.logger.Warn("qr confirm transport timeout", "timeout", c.cfg.ConfirmTimeout)
			return model.ConfirmResult{Kind: model.ConfirmTransportTimeout}, nil
		}
		return model.ConfirmResult{}, err
	}

	obj, err := decodeObject(resp.body)
	if err != nil {
		c.logger.Warn("qr confirm returned a non-object body", "status", resp.status)
		return model.ConfirmResult{Kind: model.ConfirmUnrecognized}, nil
	}
	return classifyConfirm(obj), nil
}

// FetchProfile loads the platform profile for the credential at
// credentialPath. A platform-side refusal yields model.ErrCredentialRejected.
func (c *Client) FetchProfile(ctx context.Context, credentialPath string) (*model.Profile, error) {
	resp, err := c.call(ctx, request{
		op: "fetch_profile", method: http.MethodGet,
		path: "/bili/space/myinfo?user=" + url.QueryEscape(credentialPath),
	})
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(resp.body)
	if err != nil {
		return nil, fmt.Errorf("fetch_profile: %w", err)
	}
	return mapProfile(obj)
}

// RegisterCredentialPath tells the upstream where an account's credential
// artifact lives. Failures are logged and swallowed.
func (c *Client) RegisterCredentialPath(ctx context.Context, credentialPath string) {
	_, err := c.call(ctx, request{
		op: "register_credential", method: http.MethodPost, path: "/v1/users",
		body: map[string]string{"key": "bilibili-cookies", "value": credentialPath},
	})
	if err != nil {
		c.logger.Warn("register credential path failed", "path", credentialPath, "error", err)
	}
}

// SubmitJob submits a publish job. The upstream usually answers with an
// empty object, in which case the returned submission is empty too.
func (c *Client) SubmitJob(ctx context.Context, spec model.JobSpec) (*model.JobSubmission, error) {
	resp, err := c.call(ctx, request{
		op: "submit_job", method: http.MethodPost, path: "/v1/uploads",
		body: buildJobPayload(spec),
	})
	if err != nil {
		return nil, err
	}

	sub := &model.JobSubmission{}
	if obj, err := decodeObject(resp.body); err == nil {
		sub.JobID = scalarString(obj["task_id"])
		sub.State = scalarString(obj["state"])
	}
	return sub, nil
}

// QueryJob returns the upstream's raw state text for jobID.
func (c *Client) QueryJob(ctx context.Context, jobID string) (*model.JobState, error) {
	resp, err := c.call(ctx, request{
		op: "query_job", method: http.MethodGet,
		path: "/v1/status?task_id=" + url.QueryEscape(jobID),
	})
	if err != nil {
		return nil, err
	}
	return parseJobState(jobID, resp.body)
}

// HealthCheck reports whether the upstream status endpoint answers.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.call(ctx, request{op: "health", method: http.MethodGet, path: "/v1/status"})
	if err != nil {
		c.logger.Warn("upstream health check failed", "error", err)
		return false
	}
	return true
}
