package application

import (
	"strings"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

// Platform QR login codes.
const (
	qrCodeScanned = 86090
	qrCodeExpired = 86038
)

// MapPollState derives the canonical login state from a coarse upstream
// progress payload. Unknown shapes yield WAITING.
func MapPollState(payload map[string]any) model.LoginState {
	if _, ok := findField(payload, credentialFields...); ok {
		return model.LoginStateConfirmed
	}
	if _, ok := extractString(payload, accountIDFields...); ok {
		return model.LoginStateConfirmed
	}

	status, hasStatus := intField(payload, "status")
	code, hasCode := intField(payload, "code")
	message, _ := extractString(payload, "message", "msg")

	switch {
	case hasStatus && status == 1, hasCode && code == qrCodeScanned, mentionsScanned(message):
		return model.LoginStateScanned
	case hasStatus && status == 2, hasCode && code == qrCodeExpired, mentionsExpiry(message):
		return model.LoginStateExpired
	default:
		return model.LoginStateWaiting
	}
}

// hasProgressFields reports whether payload carries any coarse progress
// marker at all.
func hasProgressFields(payload map[string]any) bool {
	_, ok := findField(payload, "status", "code", "message", "msg")
	return ok
}

func intField(payload map[string]any, name string) (int64, bool) {
	v, ok := findField(payload, name)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

func mentionsScanned(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not scanned") || strings.Contains(lower, "unscanned") {
		return false
	}
	return strings.Contains(lower, "scanned") || strings.Contains(msg, "已扫码")
}

func mentionsExpiry(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "expire") || strings.Contains(msg, "过期") || strings.Contains(msg, "失效")
}
