package application

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/output"
)

// SyncStats contains statistics from a publish reconciliation.
type SyncStats struct {
	Uploaded int
	Removed  int
}

// ArtifactPublisher records artifacts in the catalog and mirrors them to
// object storage. Both the catalog and the storage are optional.
type ArtifactPublisher struct {
	catalog output.ArtifactCatalog
	storage output.ObjectStorage
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewArtifactPublisher creates a new artifact publisher.
func NewArtifactPublisher(
	catalog output.ArtifactCatalog,
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *ArtifactPublisher {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &ArtifactPublisher{
		catalog: catalog,
		storage: storage,
		metrics: metrics,
		logger:  logger,
	}
}

// Publish records an artifact and uploads it unless the object already exists.
func (p *ArtifactPublisher) Publish(ctx context.Context, rec domain.ArtifactRecord) error {
	var errs []error

	if p.catalog != nil {
		if err := p.catalog.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	if p.storage != nil {
		if _, err := p.upload(ctx, rec.Name, rec.Path); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// upload copies a file to storage. It reports false when the object was
// already present.
func (p *ArtifactPublisher) upload(ctx context.Context, key, path string) (bool, error) {
	start := time.Now()
	exists, err := p.storage.Exists(ctx, key)
	p.metrics.ObserveStorageDuration("exists", time.Since(start))
	p.metrics.IncStorageOperations("exists", err == nil)
	if err != nil {
		return false, err
	}
	if exists {
		p.logger.Debug("artifact already published, skipping upload", "key", key)
		return false, nil
	}

	start = time.Now()
	err = p.storage.Upload(ctx, key, path)
	p.metrics.ObserveStorageDuration("upload", time.Since(start))
	p.metrics.IncStorageOperations("upload", err == nil)
	if err != nil {
		p.logger.Error("failed to upload artifact", "key", key, "error", err)
		return false, err
	}

	p.logger.Info("artifact published", "key", key)
	return true, nil
}

// Sync reconciles the catalog with the output directory and the storage:
// entries whose file vanished are dropped, files missing remotely are uploaded.
func (p *ArtifactPublisher) Sync(ctx context.Context) (SyncStats, error) {
	stats := SyncStats{}
	if p.catalog == nil {
		return stats, nil
	}

	p.logger.Info("syncing artifacts")

	records, err := p.catalog.List(ctx)
	if err != nil {
		return stats, err
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if _, err := os.Stat(rec.Path); errors.Is(err, os.ErrNotExist) {
			p.logger.Info("removing catalog entry for missing file", "name", rec.Name, "path", rec.Path)
			if err := p.catalog.Remove(ctx, rec.Name); err != nil {
				p.logger.Error("failed to remove catalog entry", "name", rec.Name, "error", err)
				continue
			}
			stats.Removed++
			continue
		}

		if p.storage == nil {
			continue
		}
		uploaded, err := p.upload(ctx, rec.Name, rec.Path)
		if err != nil {
			continue
		}
		if uploaded {
			stats.Uploaded++
		}
	}

	p.logger.Info("sync completed", "uploaded", stats.Uploaded, "removed", stats.Removed)
	return stats, nil
}

// Forget drops the catalog entry of a file that was deleted locally.
func (p *ArtifactPublisher) Forget(ctx context.Context, name string) error {
	if p.catalog == nil {
		return nil
	}
	err := p.catalog.Remove(ctx, name)
	if errors.Is(err, domain.ErrArtifactNotFound) {
		return nil
	}
	if err == nil {
		p.logger.Info("artifact removed from catalog", "name", name)
	}
	return err
}

// ListArtifacts returns all recorded artifacts.
func (p *ArtifactPublisher) ListArtifacts(ctx context.Context) ([]domain.ArtifactRecord, error) {
	if p.catalog == nil {
		return []domain.ArtifactRecord{}, nil
	}
	return p.catalog.List(ctx)
}

// GetArtifact returns one recorded artifact.
func (p *ArtifactPublisher) GetArtifact(ctx context.Context, name string) (*domain.ArtifactRecord, error) {
	if p.catalog == nil {
		return nil, domain.ErrArtifactNotFound
	}
	return p.catalog.Get(ctx, name)
}
