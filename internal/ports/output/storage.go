// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
)

// ObjectStorage defines the secondary port for publishing finished artifacts.
type ObjectStorage interface {
	// List returns all raster objects in the storage.
	List(ctx context.Context) ([]StorageObject, error)

	// Upload copies the local file src to the object key.
	Upload(ctx context.Context, key string, src string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject represents a file in object storage.
type StorageObject struct {
	Key          string // Object key/path
	Size         int64  // Size in bytes
	LastModified int64  // Unix timestamp
	ETag         string // Content hash
}

// StorageType represents the type of publish target.
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeLocal StorageType = "local"
)
