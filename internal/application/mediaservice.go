package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

// MediaFile is one uploaded file.
type MediaFile struct {
	Name   string
	Reader io.Reader
}

// MediaService writes uploads to the storage shared with the upstream.
type MediaService struct {
	store  driven.MediaStore
	newID  func() string
	logger *slog.Logger
}

func NewMediaService(store driven.MediaStore, logger *slog.Logger) *MediaService {
	return &MediaService{store: store, newID: uuid.NewString, logger: logger}
}

// Upload stores video and the optional cover under a shared random prefix,
// e.g. "1a2b3c4d_video.mp4" and "1a2b3c4d_cover.jpg".
func (s *MediaService) Upload(ctx context.Context, video MediaFile, cover *MediaFile) (*model.StoredMedia, error) {
	if video.Reader == nil || strings.TrimSpace(video.Name) == "" {
		return nil, fmt.Errorf("video file is required: %w", model.ErrInvalidRequest)
	}

	prefix := s.newID()
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	videoPath, size, err := s.store.SaveMedia(ctx, prefix+"_video"+safeExt(video.Name), video.Reader)
	if err != nil {
		return nil, fmt.Errorf("save video: %w", err)
	}

	stored := &model.StoredMedia{
		VideoPath: videoPath,
		FileName:  filepath.Base(video.Name),
		FileSize:  size,
	}

	if cover != nil && cover.Reader != nil {
		coverPath, _, err := s.store.SaveMedia(ctx, prefix+"_cover"+safeExt(cover.Name), cover.Reader)
		if err != nil {
			return nil, fmt.Errorf("save cover: %w", err)
		}
		stored.CoverPath = coverPath
	}

	s.logger.Info("media stored", "video", videoPath, "size", size, "cover", stored.CoverPath != "")
	return stored, nil
}

// safeExt keeps a short alphanumeric extension from name.
func safeExt(name string) string {
	ext := filepath.Ext(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}
