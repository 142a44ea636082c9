package biliup

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

// buildJobPayload renders the /v1/uploads body.
func buildJobPayload(spec model.JobSpec) map[string]any {
	copyright := spec.Copyright
	if copyright == 0 {
		copyright = model.CopyrightOriginal
	}
	tags := spec.Tags
	if tags == nil {
		tags = []string{}
	}

	params := map[string]any{
		"title":              spec.Title,
		"tid":                spec.Tid,
		"copyright":          copyright,
		"source":             spec.Source,
		"tag":                tags,
		"desc":               spec.Desc,
		"dynamic":            spec.Dynamic,
		"cover":              spec.Cover,
		"open_subtitle":      spec.OpenSubtitle,
		"up_selection_reply": spec.UpSelectionReply,
		"up_close_reply":     spec.UpCloseReply,
		"up_close_danmu":     spec.UpCloseDanmu,
		"user_cookie":        spec.CredentialPath,
	}
	if spec.Dtime != nil {
		params["dtime"] = *spec.Dtime
	}
	if spec.Dolby != nil {
		params["dolby"] = *spec.Dolby
	}

	files := spec.Files
	if files == nil {
		files = []string{}
	}
	return map[string]any{"files": files, "params": params}
}

// decodeValue parses body keeping numbers as json.Number so large account
// ids survive intact.
func decodeValue(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode body: %w: %w", model.ErrUpstreamProtocol, err)
	}
	return v, nil
}

// decodeObject parses body as a JSON object. An empty body is an empty object.
func decodeObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	v, err := decodeValue(body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T: %w", v, model.ErrUpstreamProtocol)
	}
	return obj, nil
}

// lookup returns key from obj, falling back to a nested "data" object.
func lookup(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok && v != nil {
		return v, true
	}
	if data, ok := obj["data"].(map[string]any); ok {
		if v, ok := data[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// scalarString renders strings and numbers; anything else is "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	case fmt.Stringer:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			f, _ := strconv.ParseFloat(t.String(), 64)
			return int64(f)
		}
		return n
	default:
		return 0
	}
}

var credentialKeys = []string{"cookie_info", "cookies", "cookie"}

// classifyConfirm tags a decoded confirm response.
func classifyConfirm(obj map[string]any) model.ConfirmResult {
	result := model.ConfirmResult{Kind: model.ConfirmUnrecognized, Payload: obj}

	if v, ok := lookup(obj, "filename"); ok {
		if path := scalarString(v); path != "" {
			result.Kind = model.ConfirmCredential
			result.CredentialPath = path
			result.InlineCredential = inlineCredential(obj)
			return result
		}
	}

	status, _ := lookup(obj, "status")
	message, _ := lookup(obj, "message")
	if strings.EqualFold(scalarString(status), "TIMEOUT") || mentionsTimeout(scalarString(message)) {
		result.Kind = model.ConfirmUpstreamTimeout
	}
	return result
}

func mentionsTimeout(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(msg, "超时")
}

// inlineCredential returns the credential embedded in a confirm response,
// re-encoded as JSON when it is structured.
func inlineCredential(obj map[string]any) []byte {
	for _, key := range credentialKeys {
		v, ok := lookup(obj, key)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if s != "" {
				return []byte(s)
			}
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			return b
		}
	}
	return nil
}

// mapProfile converts a myinfo response. A non-zero platform code or a
// response without an account id means the credential was refused.
func mapProfile(obj map[string]any) (*model.Profile, error) {
	if code, ok := obj["code"]; ok {
		if n := toInt64(code); n != 0 {
			return nil, fmt.Errorf("fetch_profile: platform code %d %q: %w",
				n, scalarString(obj["message"]), model.ErrCredentialRejected)
		}
	}

	data := obj
	if inner, ok := obj["data"].(map[string]any); ok {
		data = inner
	}

	p := &model.Profile{
		MID:   toInt64(data["mid"]),
		Name:  scalarString(data["name"]),
		Face:  scalarString(data["face"]),
		Level: int(toInt64(data["level"])),
	}
	if vip, ok := data["vip"].(map[string]any); ok {
		p.VIPStatus = int(toInt64(vip["status"]))
	}
	if p.MID == 0 {
		return nil, fmt.Errorf("fetch_profile: no account id in response: %w", model.ErrCredentialRejected)
	}
	return p, nil
}

// parseJobState accepts {"state": "..."}, {"data": {"state": "..."}} or a
// bare JSON string.
func parseJobState(jobID string, body []byte) (*model.JobState, error) {
	state := &model.JobState{JobID: jobID}
	if len(bytes.TrimSpace(body)) == 0 {
		return state, nil
	}

	v, err := decodeValue(body)
	if err != nil {
		return nil, fmt.Errorf("query_job: %w", err)
	}
	switch t := v.(type) {
	case string:
		state.State = t
	case map[string]any:
		if s, ok := lookup(t, "state"); ok {
			state.State = scalarString(s)
		}
		if id, ok := lookup(t, "task_id"); ok {
			if s := scalarString(id); s != "" {
				state.JobID = s
			}
		}
	default:
		return nil, fmt.Errorf("query_job: unexpected %T: %w", v, model.ErrUpstreamProtocol)
	}
	return state, nil
}
