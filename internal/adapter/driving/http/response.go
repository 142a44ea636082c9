package httphandler

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/bilipublish/internal/application"
	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

// envelope is the body of every /api/bilibili response. Code mirrors the
// HTTP status.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"internal server error","data":null}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeSuccess wraps data in a 200 envelope.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Message: "success", Data: data})
}

// writeError writes an error envelope with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Code: status, Message: message})
}

// QrCodeResponse is the JSON representation of an issued QR code.
type QrCodeResponse struct {
	QrcodeURL string `json:"qrcodeUrl"`
	QrcodeKey string `json:"qrcodeKey"`
}

// LoginStatusResponse reports a login attempt or an account's login status.
type LoginStatusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

func toLoginStatusResponse(r *model.LoginResult) LoginStatusResponse {
	return LoginStatusResponse{
		Status:   string(r.State),
		Message:  r.Message,
		UserID:   r.AccountID,
		Username: r.DisplayName,
	}
}

// UserInfoResponse is the JSON representation of a platform profile.
type UserInfoResponse struct {
	Mid       int64  `json:"mid"`
	Name      string `json:"name"`
	Face      string `json:"face"`
	Level     int    `json:"level"`
	VipStatus int    `json:"vipStatus"`
}

func toUserInfoResponse(p *model.Profile) UserInfoResponse {
	return UserInfoResponse{
		Mid:       p.MID,
		Name:      p.Name,
		Face:      p.Face,
		Level:     p.Level,
		VipStatus: p.VIPStatus,
	}
}

// UploadResponse describes files written to shared storage.
type UploadResponse struct {
	VideoPath string `json:"videoPath"`
	CoverPath string `json:"coverPath,omitempty"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
}

// PublishRequest is the JSON body for the publish endpoint.
type PublishRequest struct {
	UserID           string `json:"userId"`
	VideoPath        string `json:"videoPath"`
	CoverPath        string `json:"coverPath"`
	Title            string `json:"title"`
	Desc             string `json:"desc"`
	Tag              string `json:"tag"`
	Tid              int    `json:"tid"`
	Copyright        int    `json:"copyright"`
	Source           string `json:"source"`
	Dynamic          string `json:"dynamic"`
	Dtime            int64  `json:"dtime"`
	Dolby            *int   `json:"dolby"`
	OpenSubtitle     *bool  `json:"openSubtitle"`
	UpSelectionReply *bool  `json:"upSelectionReply"`
	UpCloseReply     *bool  `json:"upCloseReply"`
	UpCloseDanmu     *bool  `json:"upCloseDanmu"`
}

func (r PublishRequest) toModel() model.PublishRequest {
	return model.PublishRequest{
		UserID:           r.UserID,
		VideoPath:        r.VideoPath,
		CoverPath:        r.CoverPath,
		Title:            r.Title,
		Desc:             r.Desc,
		Tag:              r.Tag,
		Tid:              r.Tid,
		Copyright:        r.Copyright,
		Source:           r.Source,
		Dynamic:          r.Dynamic,
		Dtime:            r.Dtime,
		Dolby:            r.Dolby,
		OpenSubtitle:     r.OpenSubtitle,
		UpSelectionReply: r.UpSelectionReply,
		UpCloseReply:     r.UpCloseReply,
		UpCloseDanmu:     r.UpCloseDanmu,
	}
}

// PublishResponse reports the state of a publish task.
type PublishResponse struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func toPublishResponse(r *model.PublishResult) PublishResponse {
	return PublishResponse{TaskID: r.TaskID, Status: string(r.Status), Message: r.Message}
}

// TaskResponse is one entry of the task list.
type TaskResponse struct {
	TaskID      string `json:"taskId"`
	Title       string `json:"title"`
	VideoPath   string `json:"videoPath"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	SubmittedAt string `json:"submittedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

func toTaskResponse(t model.PublishTask) TaskResponse {
	resp := TaskResponse{
		TaskID:      t.TaskID,
		Title:       t.Title,
		VideoPath:   t.VideoPath,
		Status:      string(t.Status),
		Message:     t.Message,
		SubmittedAt: t.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// HealthResponse is the JSON representation of the health check.
type HealthResponse struct {
	Status          string `json:"status"`
	UpstreamHealthy bool   `json:"upstream_healthy"`
	VaultEnabled    bool   `json:"vault_enabled"`
	Time            string `json:"time"`
}

func toHealthResponse(r application.HealthReport) HealthResponse {
	return HealthResponse{
		Status:          r.Status,
		UpstreamHealthy: r.UpstreamHealthy,
		VaultEnabled:    r.VaultEnabled,
		Time:            r.CheckedAt.Format(time.RFC3339),
	}
}
