package application

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	payload := map[string]any{
		"url":  "",
		"data": map[string]any{"url": "https://qr", "mid": json.Number("9007199254740993")},
	}

	url, ok := extractString(payload, qrURLFields...)
	assert.True(t, ok)
	assert.Equal(t, "https://qr", url, "empty top-level value falls through to data")

	mid, ok := extractString(payload, accountIDFields...)
	assert.True(t, ok)
	assert.Equal(t, "9007199254740993", mid)

	_, ok = extractString(payload, "missing")
	assert.False(t, ok)
}

func TestExtractString_PrefersTopLevel(t *testing.T) {
	payload := map[string]any{
		"qrcode_key": "top",
		"data":       map[string]any{"qrcode_key": "nested"},
	}
	key, ok := extractString(payload, qrKeyFields...)
	assert.True(t, ok)
	assert.Equal(t, "top", key)
}

func TestExtractString_SkipsNullAndStructured(t *testing.T) {
	payload := map[string]any{
		"name": nil,
		"data": map[string]any{"name": map[string]any{"first": "a"}},
	}
	_, ok := extractString(payload, displayNameFields...)
	assert.False(t, ok)
}

func TestExtractCredential(t *testing.T) {
	assert.Equal(t, []byte("SESSDATA=abc"), extractCredential(map[string]any{"cookie": "SESSDATA=abc"}))
	assert.JSONEq(t, `{"cookies":[{"name":"SESSDATA"}]}`,
		string(extractCredential(map[string]any{"data": map[string]any{
			"cookie_info": map[string]any{"cookies": []any{map[string]any{"name": "SESSDATA"}}},
		}})))
	assert.Nil(t, extractCredential(map[string]any{"cookie": ""}))
	assert.Nil(t, extractCredential(map[string]any{}))
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(86090), 86090, true},
		{"42", 42, true},
		{" 7 ", 7, true},
		{json.Number("3"), 3, true},
		{"1.0", 1, true},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := asInt(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
