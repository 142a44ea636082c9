package application_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/bilipublish/internal/application"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

func TestMediaService_UploadVideoAndCover(t *testing.T) {
	media := &mockMedia{}
	svc := application.NewMediaService(media, discardLogger())

	stored, err := svc.Upload(context.Background(),
		application.MediaFile{Name: "Holiday Clip.MP4", Reader: strings.NewReader("video-bytes")},
		&application.MediaFile{Name: "thumb.jpg", Reader: strings.NewReader("jpg")},
	)
	require.NoError(t, err)

	assert.Equal(t, "Holiday Clip.MP4", stored.FileName)
	assert.Equal(t, int64(len("video-bytes")), stored.FileSize)
	assert.True(t, strings.HasSuffix(stored.VideoPath, "_video.mp4"), stored.VideoPath)
	assert.True(t, strings.HasSuffix(stored.CoverPath, "_cover.jpg"), stored.CoverPath)

	// Both files share the random prefix.
	videoPrefix := strings.TrimSuffix(strings.TrimPrefix(stored.VideoPath, "/data/videos/"), "_video.mp4")
	coverPrefix := strings.TrimSuffix(strings.TrimPrefix(stored.CoverPath, "/data/videos/"), "_cover.jpg")
	assert.Len(t, videoPrefix, 8)
	assert.Equal(t, videoPrefix, coverPrefix)
	assert.Len(t, media.saved, 2)
}

func TestMediaService_UploadWithoutCover(t *testing.T) {
	media := &mockMedia{}
	svc := application.NewMediaService(media, discardLogger())

	stored, err := svc.Upload(context.Background(),
		application.MediaFile{Name: `C:\clips\raw`, Reader: strings.NewReader("v")}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.VideoPath, "_video"), stored.VideoPath)
	assert.Empty(t, stored.CoverPath)
}

func TestMediaService_UploadRejectsOddExtensions(t *testing.T) {
	media := &mockMedia{}
	svc := application.NewMediaService(media, discardLogger())

	stored, err := svc.Upload(context.Background(),
		application.MediaFile{Name: "clip.mp4;rm -rf", Reader: strings.NewReader("v")}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.VideoPath, "_video"), stored.VideoPath)
}

func TestMediaService_UploadRequiresVideo(t *testing.T) {
	svc := application.NewMediaService(&mockMedia{}, discardLogger())

	_, err := svc.Upload(context.Background(), application.MediaFile{Name: "x.mp4"}, nil)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
