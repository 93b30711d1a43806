// Package artifact turns download locators into validated local rasters.
package artifact

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/output"
)

// Config holds artifact store configuration.
type Config struct {
	Dir         string // Output directory
	Extension   string // Raster extension searched in archives, default .tif
	Force       bool   // Re-download even if a valid file exists
	KeepArchive bool   // Keep the .zip sibling after extraction
}

// Store implements output.ArtifactStore on the local filesystem.
type Store struct {
	fetcher output.LocatorFetcher
	metrics output.MetricsCollector
	logger  *slog.Logger
	cfg     Config
}

// NewStore creates a new artifact store.
func NewStore(fetcher output.LocatorFetcher, metrics output.MetricsCollector, logger *slog.Logger, cfg Config) *Store {
	if cfg.Extension == "" {
		cfg.Extension = ".tif"
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Store{
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.cfg.Dir
}

// Materialize fetches the payload behind loc and stores it as name in the
// output directory. The final name only ever holds a complete raster: all
// writes go to staging files that are renamed into place.
func (s *Store) Materialize(ctx context.Context, loc domain.Locator, name string) (*domain.Artifact, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, &domain.ValidationError{
			Field:      "name",
			Value:      name,
			Constraint: "plain file name",
			Message:    "artifact name must not contain a path",
		}
	}

	if err := os.MkdirAll(s.cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	final := filepath.Join(s.cfg.Dir, name)

	if !s.cfg.Force && isValidRaster(final) {
		return s.existing(final, name)
	}

	part := final + ".part"
	_ = os.Remove(part)

	digest, size, err := s.stage(ctx, loc, part)
	if err != nil {
		_ = os.Remove(part)
		return nil, err
	}

	sig, err := readSignature(part)
	if err != nil {
		_ = os.Remove(part)
		return nil, fmt.Errorf("reading staged payload: %w", err)
	}

	kind := sniff(sig)
	s.logger.Debug("payload staged", "name", name, "bytes", size, "kind", kind.String())

	var artifact *domain.Artifact
	switch kind {
	case payloadRaster:
		artifact, err = s.promote(part, final, name, digest, size)
	case payloadArchive:
		artifact, err = s.extract(part, final, name)
	default:
		_ = os.Remove(part)
		err = &domain.FormatError{
			Path:      part,
			Signature: sig,
			Message:   "payload is neither a GeoTIFF nor a ZIP archive",
		}
	}
	if err != nil {
		return nil, err
	}

	s.metrics.AddBytesMaterialized(artifact.Source, artifact.Size)
	return artifact, nil
}

// existing describes a valid file that is already in place.
func (s *Store) existing(final, name string) (*domain.Artifact, error) {
	digest, size, err := digestFile(final)
	if err != nil {
		return nil, fmt.Errorf("reading existing artifact: %w", err)
	}

	s.logger.Info("valid artifact already present, skipping download", "name", name)
	return &domain.Artifact{
		Name:      name,
		Path:      final,
		Size:      size,
		Digest:    digest,
		Source:    domain.SourceExisting,
		Skipped:   true,
		CreatedAt: time.Now(),
	}, nil
}

// stage streams the locator into part, hashing as it goes.
func (s *Store) stage(ctx context.Context, loc domain.Locator, part string) (string, int64, error) {
	body, err := s.fetcher.Fetch(ctx, loc)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = body.Close() }()

	f, err := os.OpenFile(part, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //#nosec G304 -- part is inside the output directory
	if err != nil {
		return "", 0, fmt.Errorf("creating staging file: %w", err)
	}

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(f, h), body)
	if err != nil {
		_ = f.Close()
		return "", 0, &domain.TransferError{URL: loc.URL, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", 0, fmt.Errorf("syncing staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("closing staging file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// promote renames a staged raster onto the final name.
func (s *Store) promote(part, final, name, digest string, size int64) (*domain.Artifact, error) {
	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return nil, fmt.Errorf("renaming staged raster: %w", err)
	}
	syncDir(filepath.Dir(final))

	return &domain.Artifact{
		Name:      name,
		Path:      final,
		Size:      size,
		Digest:    digest,
		Source:    domain.SourceDirect,
		CreatedAt: time.Now(),
	}, nil
}

// extract moves a staged archive to its sibling name and extracts the first
// raster member onto the final name.
func (s *Store) extract(part, final, name string) (*domain.Artifact, error) {
	archive := final + ".zip"
	if err := os.Rename(part, archive); err != nil {
		_ = os.Remove(part)
		return nil, fmt.Errorf("renaming staged archive: %w", err)
	}

	// A failed extraction keeps the archive so that the payload the service
	// sent can be inspected.
	digest, size, member, err := s.extractMember(archive, part)
	if err != nil {
		_ = os.Remove(part)
		s.logger.Warn("archive kept after failed extraction", "name", name, "archive", archive, "error", err)
		return nil, err
	}

	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return nil, fmt.Errorf("renaming extracted raster: %w", err)
	}
	syncDir(filepath.Dir(final))

	s.logger.Info("extracted raster from archive", "name", name, "member", member)

	artifact := &domain.Artifact{
		Name:        name,
		Path:        final,
		ArchivePath: archive,
		Size:        size,
		Digest:      digest,
		Source:      domain.SourceArchive,
		CreatedAt:   time.Now(),
	}

	if !s.cfg.KeepArchive {
		if err := os.Remove(archive); err != nil {
			s.logger.Warn("failed to remove archive", "path", archive, "error", err)
		} else {
			artifact.ArchivePath = ""
		}
	}
	return artifact, nil
}

// extractMember copies the first raster member of archive into staging
// and verifies its signature.
func (s *Store) extractMember(archive, staging string) (string, int64, string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", 0, "", &domain.FormatError{Path: archive, Message: fmt.Sprintf("unreadable archive: %v", err)}
	}
	defer func() { _ = zr.Close() }()

	var member *zip.File
	members := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		members = append(members, f.Name)
		if member == nil && !f.FileInfo().IsDir() && strings.HasSuffix(strings.ToLower(f.Name), strings.ToLower(s.cfg.Extension)) {
			member = f
		}
	}
	if member == nil {
		return "", 0, "", &domain.FormatError{
			Path:    archive,
			Members: members,
			Message: fmt.Sprintf("archive contains no %s member", s.cfg.Extension),
		}
	}

	rc, err := member.Open()
	if err != nil {
		return "", 0, "", &domain.FormatError{Path: archive, Members: members, Message: fmt.Sprintf("opening member %s: %v", member.Name, err)}
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(staging, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //#nosec G304 -- staging is inside the output directory
	if err != nil {
		return "", 0, "", fmt.Errorf("creating staging file: %w", err)
	}

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(out, h), rc)
	if err != nil {
		_ = out.Close()
		return "", 0, "", &domain.FormatError{Path: archive, Members: members, Message: fmt.Sprintf("extracting member %s: %v", member.Name, err)}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return "", 0, "", fmt.Errorf("syncing staging file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", 0, "", fmt.Errorf("closing staging file: %w", err)
	}

	sig, err := readSignature(staging)
	if err != nil {
		return "", 0, "", fmt.Errorf("reading extracted member: %w", err)
	}
	if !isRasterSignature(sig) {
		return "", 0, "", &domain.FormatError{
			Path:      archive,
			Signature: sig,
			Members:   members,
			Message:   fmt.Sprintf("archive member %s is not a GeoTIFF", member.Name),
		}
	}

	return hex.EncodeToString(h.Sum(nil)), n, member.Name, nil
}

// digestFile returns the hex BLAKE3 digest and size of a file.
func digestFile(path string) (string, int64, error) {
	f, err := os.Open(path) //#nosec G304 -- path is inside the output directory
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// syncDir flushes directory metadata after a rename. Errors are ignored:
// not every platform supports syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir) //#nosec G304 -- dir is the output directory
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
