package application

import (
	"context"
	"time"

	"github.com/ericfisherdev/bilipublish/internal/domain/port/driven"
)

// HealthReport summarizes readiness for the health endpoint.
type HealthReport struct {
	Status          string
	UpstreamHealthy bool
	VaultEnabled    bool
	CheckedAt       time.Time
}

// HealthService checks the collaborators the publish flow depends on.
type HealthService struct {
	upstream     driven.UpstreamClient
	vaultEnabled bool
	timeout      time.Duration
}

// NewHealthService creates a HealthService. vaultEnabled reports whether an
// encryption key was configured.
func NewHealthService(upstream driven.UpstreamClient, vaultEnabled bool) *HealthService {
	return &HealthService{upstream: upstream, vaultEnabled: vaultEnabled, timeout: 5 * time.Second}
}

// Check probes the upstream. The service is "ok" only when the upstream
// answers and credentials can be stored; otherwise it is "degraded".
func (s *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := HealthReport{
		UpstreamHealthy: s.upstream.HealthCheck(ctx),
		VaultEnabled:    s.vaultEnabled,
		CheckedAt:       time.Now().UTC(),
	}
	report.Status = "degraded"
	if report.UpstreamHealthy && report.VaultEnabled {
		report.Status = "ok"
	}
	return report
}
