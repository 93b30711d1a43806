package output

import (
	"context"
	"io"

	"github.com/jobrunner/geoexport/internal/domain"
)

// ExportClient defines the secondary port for the remote export service.
type ExportClient interface {
	// RequestDownload asks the service to render the request and returns a
	// single-use locator. Failures are *domain.ExportError values.
	RequestDownload(ctx context.Context, req domain.ExportRequest) (domain.Locator, error)
}

// LocatorFetcher defines the secondary port for streaming a locator's payload.
type LocatorFetcher interface {
	// Fetch opens the payload behind a locator. Failures are
	// *domain.TransferError values.
	Fetch(ctx context.Context, loc domain.Locator) (io.ReadCloser, error)
}

// ArtifactStore defines the secondary port for persisting payloads locally.
type ArtifactStore interface {
	// Materialize turns a locator into a validated file named name in the
	// output directory.
	Materialize(ctx context.Context, loc domain.Locator, name string) (*domain.Artifact, error)
}

// ArtifactCatalog defines the secondary port for the artifact ledger.
type ArtifactCatalog interface {
	// Record inserts or replaces the entry for an artifact name.
	Record(ctx context.Context, rec domain.ArtifactRecord) error

	// List returns all recorded artifacts, newest first.
	List(ctx context.Context) ([]domain.ArtifactRecord, error)

	// Get returns the record for an artifact name.
	Get(ctx context.Context, name string) (*domain.ArtifactRecord, error)

	// Remove deletes the record for an artifact name.
	Remove(ctx context.Context, name string) error

	// Close releases the catalog.
	Close() error
}
