// Package storage provides artifact transfer and publish adapters.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/output"
)

// LocalStorage implements ObjectStorage as a mirror directory, e.g. a
// network share.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns all raster files in the mirror directory.
func (s *LocalStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !isRaster(info.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		objects = append(objects, output.StorageObject{
			Key:          filepath.ToSlash(relPath),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})

		return nil
	})

	if err != nil {
		return nil, err
	}

	return objects, nil
}

// Upload copies src into the mirror under key. The copy is written to a
// temporary name first so readers never see a partial file.
func (s *LocalStorage) Upload(ctx context.Context, key string, src string) error {
	dest := s.FullPath(key)

	// If source and dest are the same, nothing to do
	if filepath.Clean(src) == dest {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	in, err := os.Open(src) //#nosec G304 -- src is an artifact in the output directory
	if err != nil {
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}
	defer func() { _ = in.Close() }()

	tmp := dest + ".part"
	out, err := os.Create(tmp) //#nosec G304 -- tmp is a controlled local path
	if err != nil {
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}
	return nil
}

// Exists checks if a file exists.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.FullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FullPath returns the full path for a key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// isRaster reports whether a key names a GeoTIFF.
func isRaster(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff")
}

// contentType returns the MIME type used when uploading key.
func contentType(key string) string {
	if isRaster(key) {
		return "image/tiff"
	}
	return "application/octet-stream"
}
