package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/bilipublish/internal/application"
)

func TestHealthService_Check(t *testing.T) {
	tests := []struct {
		name         string
		healthy      bool
		vaultEnabled bool
		want         string
	}{
		{"all good", true, true, "ok"},
		{"upstream down", false, true, "degraded"},
		{"no encryption key", true, false, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := application.NewHealthService(&mockUpstream{healthy: tt.healthy}, tt.vaultEnabled)

			report := svc.Check(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, tt.healthy, report.UpstreamHealthy)
			assert.Equal(t, tt.vaultEnabled, report.VaultEnabled)
			assert.False(t, report.CheckedAt.IsZero())
		})
	}
}
