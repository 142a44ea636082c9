// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string

	DBDriver string
	DBPath   string
	DBDSN    string

	// SecretKey is the 32-byte AES key for the credential vault. Nil disables
	// the vault: saves and loads fail with ErrEncryptionKeyNotSet.
	SecretKey []byte

	UpstreamURL      string
	UpstreamUsername string
	UpstreamPassword string
	CookieName       string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	ConfirmTimeout   time.Duration

	ArtifactRoot string
	VideoDir     string
	// File permissions applied to artifacts and media written into the
	// namespace shared with the upstream.
	ArtifactFileMode fs.FileMode
	MediaFileMode    fs.FileMode

	CredentialTTL        time.Duration
	ArtifactWaitAttempts int
	ArtifactWaitInterval time.Duration
	LoginSessionTTL      time.Duration

	// QRIssuePerMinute caps QR code issuance across all callers. Zero
	// disables the limit.
	QRIssuePerMinute int
	MaxUploadBytes   int64
}

// VaultEnabled reports whether a secret key was configured.
func (c *Config) VaultEnabled() bool {
	return len(c.SecretKey) > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// BILIPUBLISH_UPSTREAM_USERNAME and BILIPUBLISH_UPSTREAM_PASSWORD are required.
// BILIPUBLISH_SECRET_KEY is optional; without it the app starts but cannot
// persist credentials. Everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envString("BILIPUBLISH_LISTEN_ADDR", "127.0.0.1:8080"),
		DBDriver:         strings.ToLower(envString("BILIPUBLISH_DB_DRIVER", DriverSQLite)),
		DBPath:           envString("BILIPUBLISH_DB_PATH", "bilipublish.db"),
		DBDSN:            os.Getenv("BILIPUBLISH_DB_DSN"),
		UpstreamURL:      strings.TrimRight(envString("BILIPUBLISH_UPSTREAM_URL", "http://127.0.0.1:19159"), "/"),
		UpstreamUsername: os.Getenv("BILIPUBLISH_UPSTREAM_USERNAME"),
		UpstreamPassword: os.Getenv("BILIPUBLISH_UPSTREAM_PASSWORD"),
		CookieName:       envString("BILIPUBLISH_COOKIE_NAME", "session_id"),
		ArtifactRoot:     envString("BILIPUBLISH_ARTIFACT_ROOT", "/opt"),
		VideoDir:         envString("BILIPUBLISH_VIDEO_DIR", "/data/videos"),
	}

	if cfg.UpstreamUsername == "" || cfg.UpstreamPassword == "" {
		return nil, fmt.Errorf("BILIPUBLISH_UPSTREAM_USERNAME and BILIPUBLISH_UPSTREAM_PASSWORD are required")
	}

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("BILIPUBLISH_DB_DSN is required when BILIPUBLISH_DB_DRIVER is %q", DriverPostgres)
		}
	default:
		return nil, fmt.Errorf("BILIPUBLISH_DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.DBDriver)
	}

	if u, err := url.Parse(cfg.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("BILIPUBLISH_UPSTREAM_URL has invalid url %q", cfg.UpstreamURL)
	}

	if v, ok := os.LookupEnv("BILIPUBLISH_SECRET_KEY"); ok && v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("BILIPUBLISH_SECRET_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("BILIPUBLISH_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	var err error
	durations := []struct {
		target *time.Duration
		key    string
		def    time.Duration
	}{
		{&cfg.ConnectTimeout, "BILIPUBLISH_CONNECT_TIMEOUT", 10 * time.Second},
		{&cfg.RequestTimeout, "BILIPUBLISH_REQUEST_TIMEOUT", 30 * time.Second},
		{&cfg.ConfirmTimeout, "BILIPUBLISH_CONFIRM_TIMEOUT", 310 * time.Second},
		{&cfg.CredentialTTL, "BILIPUBLISH_CREDENTIAL_TTL", 30 * 24 * time.Hour},
		{&cfg.ArtifactWaitInterval, "BILIPUBLISH_ARTIFACT_WAIT_INTERVAL", 2 * time.Second},
		{&cfg.LoginSessionTTL, "BILIPUBLISH_LOGIN_SESSION_TTL", 10 * time.Minute},
	}
	for _, d := range durations {
		if *d.target, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.ArtifactWaitAttempts, err = envInt("BILIPUBLISH_ARTIFACT_WAIT_ATTEMPTS", 1); err != nil {
		return nil, err
	}
	if cfg.QRIssuePerMinute, err = envInt("BILIPUBLISH_QR_ISSUE_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	maxUploadMB, err := envInt("BILIPUBLISH_MAX_UPLOAD_MB", 4096)
	if err != nil {
		return nil, err
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("BILIPUBLISH_MAX_UPLOAD_MB must be positive, got %d", maxUploadMB)
	}
	cfg.MaxUploadBytes = int64(maxUploadMB) << 20

	if cfg.ArtifactFileMode, err = envFileMode("BILIPUBLISH_ARTIFACT_FILE_MODE", 0o640); err != nil {
		return nil, err
	}
	if cfg.MediaFileMode, err = envFileMode("BILIPUBLISH_MEDIA_FILE_MODE", 0o644); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return parsed, nil
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return n, nil
}

// envFileMode parses an octal permission string such as "0640".
func envFileMode(key string, def fs.FileMode) (fs.FileMode, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(v, "0o"), 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("%s has invalid octal file mode %q", key, v)
	}
	return fs.FileMode(n), nil
}
