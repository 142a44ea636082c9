package application

import (
	"strings"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

type statusEntry struct {
	status  model.PublishStatus
	message string
}

// upstreamStates maps the upstream's free-text job states.
var upstreamStates = map[string]statusEntry{
	"已完成":             {model.PublishStatusCompleted, "publish completed"},
	"success":         {model.PublishStatusCompleted, "publish completed"},
	"进行中":             {model.PublishStatusProcessing, "video uploading"},
	"processing":      {model.PublishStatusProcessing, "video uploading"},
	"cookies.json不存在": {model.PublishStatusCookieMissing, "credential file missing"},
	"登录失败,请检查cookie":  {model.PublishStatusCookieExpired, "credential expired, please log in again"},
	"视频文件不存在":         {model.PublishStatusVideoNotFound, "video file not found"},
	"任务不存在!":          {model.PublishStatusTaskNotFound, "task not found"},
	"上传失败":            {model.PublishStatusFailed, "upload failed"},
	"failed":          {model.PublishStatusFailed, "upload failed"},
	"读取封面错误":          {model.PublishStatusProcessing, "cover path is invalid"},
}

// MapPublishStatus translates an upstream job state into the canonical
// taxonomy. Unknown text maps to PROCESSING with the text as message.
func MapPublishStatus(state string) (model.PublishStatus, string) {
	state = strings.TrimSpace(state)
	if state == "" {
		return model.PublishStatusProcessing, "processing"
	}
	if e, ok := upstreamStates[state]; ok {
		return e.status, e.message
	}
	return model.PublishStatusProcessing, state
}
