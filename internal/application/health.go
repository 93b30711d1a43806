package application

import (
	"context"

	"github.com/jobrunner/geoexport/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	exports   *ExportService
	artifacts input.ArtifactLister
}

// NewHealthService creates a new health service.
func NewHealthService(exports *ExportService, artifacts input.ArtifactLister) *HealthService {
	return &HealthService{
		exports:   exports,
		artifacts: artifacts,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	return true // Basic health check
}

// IsReady returns true if the service can accept a new export.
func (s *HealthService) IsReady(ctx context.Context) bool {
	if s.artifacts != nil {
		if _, err := s.artifacts.ListArtifacts(ctx); err != nil {
			return false
		}
	}
	return !s.exports.Busy()
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"negotiator": "idle",
		"catalog":    "disabled",
	}

	busy := s.exports.Busy()
	if busy {
		components["negotiator"] = "busy"
	}

	count := 0
	if s.artifacts != nil {
		records, err := s.artifacts.ListArtifacts(ctx)
		if err != nil {
			components["catalog"] = "error"
		} else {
			components["catalog"] = "ok"
			count = len(records)
		}
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      s.IsReady(ctx),
		Busy:       busy,
		Artifacts:  count,
		Components: components,
	}
}
