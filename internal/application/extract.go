package application

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Field names the upstream has used across versions, in lookup order.
var (
	qrURLFields       = []string{"url", "qrcode_url", "qrcodeUrl"}
	qrKeyFields       = []string{"qrcode_key", "qrcodeKey", "auth_code", "key"}
	accountIDFields   = []string{"mid", "user_id", "userId", "DedeUserID"}
	displayNameFields = []string{"name", "username", "uname"}
	credentialFields  = []string{"cookie", "cookies", "cookie_info"}
)

// findField returns the first non-null, non-empty value among names at the
// top level of node, then recursively inside its "data" object.
func findField(node map[string]any, names ...string) (any, bool) {
	if node == nil {
		return nil, false
	}
	for _, name := range names {
		if v, ok := node[name]; ok && v != nil && v != "" {
			return v, true
		}
	}
	if data, ok := node["data"].(map[string]any); ok {
		return findField(data, names...)
	}
	return nil, false
}

// extractString is findField for scalar values rendered as text. Empty
// strings and structured values do not match.
func extractString(node map[string]any, names ...string) (string, bool) {
	v, ok := findField(node, names...)
	if !ok {
		return "", false
	}
	s := strings.TrimSpace(scalarText(v))
	return s, s != ""
}

// extractCredential returns the raw credential embedded in node. Structured
// values are re-encoded as JSON.
func extractCredential(node map[string]any) []byte {
	v, ok := findField(node, credentialFields...)
	if !ok {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return []byte(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

// asInt coerces numbers and numeric strings.
func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string, fmt.Stringer:
		s := strings.TrimSpace(scalarText(t))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
