package driven

import (
	"context"
	"io"
)

// ArtifactStore is the shared namespace where the upstream expects credential
// artifacts (e.g. "data/42.json"). Paths are relative to the store root.
type ArtifactStore interface {
	Exists(ctx context.Context, relPath string) (bool, error)
	Read(ctx context.Context, relPath string) ([]byte, error)
	// Write replaces the artifact atomically, creating parent directories.
	Write(ctx context.Context, relPath string, data []byte) error
	// Remove deletes the artifact. Removing a missing artifact is not an error.
	Remove(ctx context.Context, relPath string) error
}

// MediaStore persists uploaded video and cover files on shared storage that
// the upstream can read.
type MediaStore interface {
	// SaveMedia writes r under name and returns the absolute path and size.
	SaveMedia(ctx context.Context, name string, r io.Reader) (string, int64, error)
}
