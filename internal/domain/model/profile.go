package model

// Profile is the platform account information reported by the upstream.
type Profile struct {
	MID       int64
	Name      string
	Face      string
	Level     int
	VIPStatus int
}
