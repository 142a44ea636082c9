// Package fsstore keeps credential artifacts and uploaded media on a
// filesystem directory shared with the upstream service.
package fsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

var (
	_ driven.ArtifactStore = (*Store)(nil)
	_ driven.MediaStore    = (*Store)(nil)
)

// ErrOutsideRoot is returned for paths that would escape the store root.
var ErrOutsideRoot = errors.New("path escapes store root")

// Default permissions for files written into the shared namespace. The
// upstream process reads them and may run under a different uid.
const (
	DefaultArtifactMode fs.FileMode = 0o640
	DefaultMediaMode    fs.FileMode = 0o644
)

// Store roots all artifact paths at Root and all media at MediaDir.
type Store struct {
	root         string
	mediaDir     string
	artifactMode fs.FileMode
	mediaMode    fs.FileMode
}

// Option adjusts a Store.
type Option func(*Store)

// WithArtifactMode sets the permission bits of credential artifacts.
func WithArtifactMode(mode fs.FileMode) Option {
	return func(s *Store) { s.artifactMode = mode.Perm() }
}

// WithMediaMode sets the permission bits of uploaded media files.
func WithMediaMode(mode fs.FileMode) Option {
	return func(s *Store) { s.mediaMode = mode.Perm() }
}

// New creates a Store. mediaDir may be relative to root.
func New(root, mediaDir string, opts ...Option) *Store {
	if mediaDir != "" && !filepath.IsAbs(mediaDir) {
		mediaDir = filepath.Join(root, mediaDir)
	}
	s := &Store{
		root:         filepath.Clean(root),
		mediaDir:     mediaDir,
		artifactMode: DefaultArtifactMode,
		mediaMode:    DefaultMediaMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolve maps relPath under dir, rejecting absolute paths and traversal.
func resolve(dir, relPath string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(relPath, `\`, "/"))
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%q: %w", relPath, ErrOutsideRoot)
	}
	full := filepath.Join(dir, rel)
	within, err := filepath.Rel(dir, full)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", relPath, ErrOutsideRoot)
	}
	return full, nil
}

func (s *Store) Exists(ctx context.Context, relPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := resolve(s.root, relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat artifact %q: %w", relPath, err)
	}
}

func (s *Store) Read(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := resolve(s.root, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read artifact %q: %w", relPath, err)
	}
	return data, nil
}

func (s *Store) Write(ctx context.Context, relPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := resolve(s.root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create artifact directory for %q: %w", relPath, err)
	}
	if err := atomic.WriteFile(full, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write artifact %q: %w", relPath, err)
	}
	// atomic.WriteFile leaves its temp file at 0600.
	if err := os.Chmod(full, s.artifactMode); err != nil {
		return fmt.Errorf("chmod artifact %q: %w", relPath, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := resolve(s.root, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact %q: %w", relPath, err)
	}
	return nil
}

// SaveMedia streams r into the media directory and returns the absolute
// path the upstream should be given.
func (s *Store) SaveMedia(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if name != filepath.Base(name) {
		return "", 0, fmt.Errorf("%q: %w", name, ErrOutsideRoot)
	}
	full, err := resolve(s.mediaDir, name)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(s.mediaDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create media directory: %w", err)
	}

	counter := &countingReader{r: r}
	if err := atomic.WriteFile(full, counter); err != nil {
		return "", 0, fmt.Errorf("save media %q: %w", name, err)
	}
	if err := os.Chmod(full, s.mediaMode); err != nil {
		return "", 0, fmt.Errorf("chmod media %q: %w", name, err)
	}

	abs, err := filepath.Abs(full)
	if err != nil {
		return "", 0, fmt.Errorf("resolve media path: %w", err)
	}
	return abs, counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
