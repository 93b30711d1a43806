// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/geoexport/internal/domain"
)

// Negotiator defines the primary port for export negotiation.
type Negotiator interface {
	// NegotiateSingle searches the resolution ladder for one rich file and
	// falls back to NegotiateAdaptive.
	NegotiateSingle(ctx context.Context, img domain.ImageRef, region domain.Region, budget domain.SizeBudget) (*domain.Outcome, error)

	// NegotiateAdaptive searches the size-sorted candidate space and falls
	// back to quadrant tiling.
	NegotiateAdaptive(ctx context.Context, img domain.ImageRef, region domain.Region, budget domain.SizeBudget) (*domain.Outcome, error)
}

// ArtifactLister defines the primary port for browsing produced artifacts.
type ArtifactLister interface {
	// ListArtifacts returns all recorded artifacts.
	ListArtifacts(ctx context.Context) ([]domain.ArtifactRecord, error)

	// GetArtifact returns one recorded artifact by file name.
	GetArtifact(ctx context.Context, name string) (*domain.ArtifactRecord, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Busy       bool              // A negotiation is running
	Artifacts  int               // Number of recorded artifacts
	Components map[string]string // Component statuses
}
