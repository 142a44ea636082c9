package biliup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/metrics"
)

// accountPresence is the result of the service-account existence probe.
type accountPresence int

const (
	accountAbsent accountPresence = iota
	accountPresent
)

// session owns the upstream auth token. Readers take a snapshot of the token
// together with its generation; a refresh only replaces the token when the
// caller's generation is still current, so concurrent 401s collapse into a
// single handshake.
type session struct {
	mu    sync.Mutex
	token string
	gen   uint64

	// timeout bounds one shared handshake. Zero means no bound.
	timeout time.Duration
	group   singleflight.Group
}

func (s *session) snapshot() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.gen
}

// refresh runs handshake unless another caller already replaced the token
// observed at staleGen. The shared handshake is detached from the caller
// that started it, so one cancelled caller does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (s *session) refresh(ctx context.Context, staleGen uint64, handshake func(context.Context) (string, error)) error {
	if _, gen := s.snapshot(); gen != staleGen {
		return nil
	}

	ch := s.group.DoChan("handshake", func() (any, error) {
		if _, gen := s.snapshot(); gen != staleGen {
			return nil, nil
		}
		hctx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(hctx, s.timeout)
			defer cancel()
		}
		token, err := handshake(hctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.token = token
		s.gen++
		s.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshake probes the service account, registers or logs in accordingly
// and returns the session cookie to present on later calls.
func (c *Client) handshake(ctx context.Context) (string, error) {
	presence, err := c.probeAccount(ctx)
	if err != nil {
		metrics.UpstreamReauth.WithLabelValues("probe_failed").Inc()
		return "", err
	}

	path := "/v1/users/login"
	if presence == accountAbsent {
		path = "/v1/users/register"
	}

	body, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamReauth.WithLabelValues("unavailable").Inc()
		return "", fmt.Errorf("%s: %w: %w", path, model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		metrics.UpstreamReauth.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%s returned HTTP %d: %w", path, resp.StatusCode, model.ErrUpstreamAuth)
	}

	token, ok := sessionCookie(resp.Header, c.cfg.CookieName)
	if !ok {
		metrics.UpstreamReauth.WithLabelValues("no_cookie").Inc()
		return "", fmt.Errorf("%s returned no %s cookie: %w", path, c.cfg.CookieName, model.ErrUpstreamAuth)
	}

	metrics.UpstreamReauth.WithLabelValues("success").Inc()
	c.logger.Info("upstream session established", "registered", presence == accountAbsent)
	return token, nil
}

// probeAccount asks the upstream whether the service account exists.
func (c *Client) probeAccount(ctx context.Context) (accountPresence, error) {
	endpoint := c.cfg.BaseURL + "/v1/users/" + url.PathEscape(c.cfg.Username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return accountAbsent, fmt.Errorf("build account probe: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return accountAbsent, fmt.Errorf("account probe: %w: %w", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return accountAbsent, nil
	case resp.StatusCode < http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		// A guarded lookup still proves the account exists.
		return accountPresent, nil
	default:
		return accountAbsent, fmt.Errorf("account probe returned HTTP %d: %w", resp.StatusCode, model.ErrUpstreamUnavailable)
	}
}

// sessionCookie returns the first Set-Cookie segment named name, e.g.
// "session_id=abc", ready to be sent back as a Cookie header.
func sessionCookie(h http.Header, name string) (string, bool) {
	prefix := name + "="
	for _, v := range h.Values("Set-Cookie") {
		segment, _, _ := strings.Cut(v, ";")
		segment = strings.TrimSpace(segment)
		if strings.HasPrefix(segment, prefix) && len(segment) > len(prefix) {
			return segment, true
		}
	}
	return "", false
}
