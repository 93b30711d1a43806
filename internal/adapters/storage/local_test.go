package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/geoexport/internal/domain"
)

func TestNewLocalStorage(t *testing.T) {
	storage := NewLocalStorage("/tmp/test")

	if storage == nil {
		t.Fatal("NewLocalStorage() returned nil")
	}

	if storage.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", storage.basePath, "/tmp/test")
	}
}

func TestLocalStorageList(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"a_s120m_NDVI_ST_C.tif",
		"b_tile1_s300m_NDVI_ST_C.TIF",
		"subdir/nested.tiff",
		"a_s120m_NDVI_ST_C.tif.zip",
		"ignored.txt",
	}

	for _, f := range testFiles {
		path := filepath.Join(tmpDir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	storage := NewLocalStorage(tmpDir)
	objects, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// Should only list rasters
	if len(objects) != 3 {
		t.Errorf("len(objects) = %d, want 3", len(objects))
	}

	for _, obj := range objects {
		if obj.Size != 4 { // "test" is 4 bytes
			t.Errorf("object %q size = %d, want 4", obj.Key, obj.Size)
		}
		if obj.LastModified == 0 {
			t.Errorf("object %q LastModified should not be 0", obj.Key)
		}
	}
}

func TestLocalStorageListNonExistent(t *testing.T) {
	storage := NewLocalStorage("/nonexistent/path")
	_, err := storage.List(context.Background())
	if err == nil {
		t.Error("List() should error for non-existent path")
	}
}

func TestLocalStorageExists(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "exists.tif")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	storage := NewLocalStorage(tmpDir)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"existing file", "exists.tif", true},
		{"non-existing file", "nonexistent.tif", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, err := storage.Exists(context.Background(), tt.key)
			if err != nil {
				t.Errorf("Exists() error = %v", err)
			}
			if exists != tt.want {
				t.Errorf("Exists() = %v, want %v", exists, tt.want)
			}
		})
	}
}

func TestLocalStorageUpload(t *testing.T) {
	srcDir := t.TempDir()
	mirrorDir := t.TempDir()

	testContent := "II*\x00 raster payload"
	srcFile := filepath.Join(srcDir, "source.tif")
	if err := os.WriteFile(srcFile, []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create source file: %v", err)
	}

	storage := NewLocalStorage(mirrorDir)

	// Destination in nested directory that doesn't exist yet
	if err := storage.Upload(context.Background(), "2024/06/dest.tif", srcFile); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(mirrorDir, "2024", "06", "dest.tif"))
	if err != nil {
		t.Fatalf("failed to read uploaded file: %v", err)
	}
	if string(content) != testContent {
		t.Errorf("content = %q, want %q", string(content), testContent)
	}

	if _, err := os.Stat(filepath.Join(mirrorDir, "2024", "06", "dest.tif.part")); !os.IsNotExist(err) {
		t.Error("temporary upload file should be gone")
	}

	exists, err := storage.Exists(context.Background(), "2024/06/dest.tif")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v; want true", exists, err)
	}
}

func TestLocalStorageUploadSameFile(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.tif")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	storage := NewLocalStorage(tmpDir)

	// Upload onto itself should be a no-op
	if err := storage.Upload(context.Background(), "test.tif", testFile); err != nil {
		t.Errorf("Upload() to same location should not error, got: %v", err)
	}
}

func TestLocalStorageUploadNonExistent(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())

	err := storage.Upload(context.Background(), "dest.tif", "/nonexistent/source.tif")
	if err == nil {
		t.Fatal("Upload() should error for non-existent source")
	}

	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "upload" {
		t.Errorf("error = %v, want *domain.StorageError for upload", err)
	}
}

func TestLocalStorageFullPath(t *testing.T) {
	storage := NewLocalStorage("/data/exports")

	tests := []struct {
		key  string
		want string
	}{
		{"test.tif", "/data/exports/test.tif"},
		{"subdir/nested.tif", "/data/exports/subdir/nested.tif"},
		{"", "/data/exports"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := storage.FullPath(tt.key); got != tt.want {
				t.Errorf("FullPath(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"a.tif", "image/tiff"},
		{"a.TIFF", "image/tiff"},
		{"a.tif.zip", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := contentType(tt.key); got != tt.want {
			t.Errorf("contentType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
