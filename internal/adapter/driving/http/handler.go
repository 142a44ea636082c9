// Package httphandler is the REST driving adapter.
package httphandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/bilipublish/internal/application"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// Options tunes request limits.
type Options struct {
	// QRIssuePerMinute caps GET /qrcode across all callers. Zero disables it.
	QRIssuePerMinute int
	MaxUploadBytes   int64
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	login     *application.LoginService
	publish   *application.PublishService
	media     *application.MediaService
	health    *application.HealthService
	qrLimiter *rate.Limiter
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	login *application.LoginService,
	publish *application.PublishService,
	media *application.MediaService,
	health *application.HealthService,
	opts Options,
	logger *slog.Logger,
) *Handler {
	h := &Handler{
		login:     login,
		publish:   publish,
		media:     media,
		health:    health,
		maxUpload: opts.MaxUploadBytes,
		logger:    logger,
	}
	if opts.QRIssuePerMinute > 0 {
		h.qrLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.QRIssuePerMinute)), opts.QRIssuePerMinute)
	}
	return h
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, metrics and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/bilibili/qrcode", h.IssueQrCode)
	mux.HandleFunc("POST /api/bilibili/qrcode/poll", h.ConfirmQrLogin)
	mux.HandleFunc("GET /api/bilibili/qrcode/{key}/state", h.PollLoginState)
	mux.HandleFunc("GET /api/bilibili/login/status", h.CheckLoginStatus)
	mux.HandleFunc("POST /api/bilibili/logout", h.Logout)
	mux.HandleFunc("GET /api/bilibili/user/info", h.UserInfo)
	mux.HandleFunc("POST /api/bilibili/upload", h.Upload)
	mux.HandleFunc("POST /api/bilibili/publish", h.Publish)
	mux.HandleFunc("GET /api/bilibili/upload/status/{taskId}", h.PublishStatus)
	mux.HandleFunc("GET /api/bilibili/tasks", h.ListTasks)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = metricsMiddleware(wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// IssueQrCode starts a QR login.
func (h *Handler) IssueQrCode(w http.ResponseWriter, r *http.Request) {
	if h.qrLimiter != nil && !h.qrLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many QR code requests, try again later")
		return
	}

	qr, err := h.login.IssueQrCode(r.Context())
	if err != nil {
		h.writeServiceError(w, "issue qr code", err)
		return
	}
	writeSuccess(w, QrCodeResponse{QrcodeURL: qr.URL, QrcodeKey: qr.LoginKey})
}

type confirmRequest struct {
	QrcodeKey string `json:"qrcodeKey"`
}

// ConfirmQrLogin blocks until the user confirms the scan or the code
// expires. Clients need a timeout of at least five minutes.
func (h *Handler) ConfirmQrLogin(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QrcodeKey == "" {
		writeError(w, http.StatusBadRequest, "qrcodeKey is required")
		return
	}

	result, err := h.login.ConfirmQrLogin(r.Context(), req.QrcodeKey)
	if err != nil {
		h.writeServiceError(w, "confirm qr login", err)
		return
	}
	writeSuccess(w, toLoginStatusResponse(result))
}

// PollLoginState reports the last known state of a QR login without
// blocking.
func (h *Handler) PollLoginState(w http.ResponseWriter, r *http.Request) {
	result, err := h.login.PollLoginState(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeServiceError(w, "poll login state", err)
		return
	}
	writeSuccess(w, toLoginStatusResponse(result))
}

// CheckLoginStatus reports whether an account can publish without a new
// QR login.
func (h *Handler) CheckLoginStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r.URL.Query().Get("userId"))
	if !ok {
		return
	}

	result, err := h.login.CheckLoginStatus(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "check login status", err)
		return
	}
	writeSuccess(w, toLoginStatusResponse(result))
}

type logoutRequest struct {
	UserID string `json:"userId"`
}

// Logout forgets an account's credential.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, ok := requireUserID(w, req.UserID)
	if !ok {
		return
	}

	if err := h.login.Logout(r.Context(), userID); err != nil {
		h.writeServiceError(w, "logout", err)
		return
	}
	writeSuccess(w, nil)
}

// UserInfo returns the platform profile of an account.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r.URL.Query().Get("userId"))
	if !ok {
		return
	}

	profile, err := h.publish.UserInfo(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "user info", err)
		return
	}
	writeSuccess(w, toUserInfoResponse(profile))
}

// Upload stores a video ("file") and an optional cover ("cover") sent as
// multipart/form-data.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	video, videoHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer video.Close()
	if videoHeader.Size == 0 {
		writeError(w, http.StatusBadRequest, "video file is empty")
		return
	}

	var cover *application.MediaFile
	coverFile, coverHeader, err := r.FormFile("cover")
	switch {
	case err == nil:
		defer coverFile.Close()
		if coverHeader.Size > 0 {
			cover = &application.MediaFile{Name: coverHeader.Filename, Reader: coverFile}
		}
	case !errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, "invalid cover file")
		return
	}

	stored, err := h.media.Upload(r.Context(), application.MediaFile{Name: videoHeader.Filename, Reader: video}, cover)
	if err != nil {
		h.writeServiceError(w, "upload", err)
		return
	}
	writeSuccess(w, UploadResponse{
		VideoPath: stored.VideoPath,
		CoverPath: stored.CoverPath,
		FileName:  stored.FileName,
		FileSize:  stored.FileSize,
	})
}

// Publish submits a previously uploaded video.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := requireUserID(w, req.UserID); !ok {
		return
	}

	result, err := h.publish.Publish(r.Context(), req.toModel())
	if err != nil {
		h.writeServiceError(w, "publish", err)
		return
	}
	writeSuccess(w, toPublishResponse(result))
}

// PublishStatus refreshes and returns the state of a publish task.
func (h *Handler) PublishStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.publish.Status(r.Context(), r.PathValue("taskId"))
	if err != nil {
		h.writeServiceError(w, "publish status", err)
		return
	}
	writeSuccess(w, toPublishResponse(result))
}

// ListTasks returns an account's recent publish tasks, newest first.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r.URL.Query().Get("userId"))
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.publish.ListTasks(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, "list tasks", err)
		return
	}

	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	writeSuccess(w, resp)
}

// Health reports liveness. A degraded report still answers 200 so the
// container stays up while the upstream recovers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toHealthResponse(h.health.Check(r.Context())))
}

// writeServiceError maps service errors onto envelope codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case model.NeedsRelogin(err):
		writeError(w, http.StatusUnauthorized, model.ErrCredentialExpired.Error())
	case errors.Is(err, model.ErrRecoveryFailed):
		h.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "credential could not be restored, try again later")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		h.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
	case errors.Is(err, model.ErrUpstreamAuth),
		errors.Is(err, model.ErrUpstreamProtocol),
		errors.Is(err, model.ErrUpstreamUnavailable),
		errors.Is(err, model.ErrCredentialRejected):
		h.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusBadGateway, op+" failed: upstream error")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		h.logger.Info(op+" cancelled by client")
	default:
		h.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireUserID validates an account id taken from the request. Account ids
// end up in artifact file names, so only a conservative alphabet is allowed.
func requireUserID(w http.ResponseWriter, userID string) (string, bool) {
	if !model.ValidAccountID(userID) {
		writeError(w, http.StatusBadRequest, "userId is required and may contain only letters, digits, '-' and '_'")
		return "", false
	}
	return userID, true
}
