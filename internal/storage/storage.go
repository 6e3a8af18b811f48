// Package storage abstracts the object storage the catalog uses to
// distribute snapshots: a fleet of planner instances pushes and pulls
// compressed catalog snapshots through this interface instead of talking to
// a specific backend directly.
package storage

import (
	"context"
	"errors"
)

// Common errors for object storage operations.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrUploadFailed     = errors.New("upload failed")
	ErrDownloadFailed   = errors.New("download failed")
	ErrDeleteFailed     = errors.New("delete failed")
	ErrChecksumMismatch = errors.New("downloaded object failed checksum verification")
)

// ObjectStorage abstracts the object storage operations the catalog needs
// to push, pull, and retire snapshots. Implementations include S3 and the
// local filesystem (for single-node deployments and tests).
type ObjectStorage interface {
	// Upload uploads a file to object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// UploadMultipart uploads using multipart for snapshots too large for a
	// single PUT. Returns the ETag of the uploaded object for validation.
	UploadMultipart(ctx context.Context, localPath, objectPath string) (string, error)

	// Download downloads a file from object storage.
	// objectPath is the source path in object storage.
	// localPath is the destination path on the local filesystem.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object from storage. Used to retire superseded
	// catalog snapshots.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage. Used to give a precise
	// not-found error before attempting a pull.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix. Used to
	// find the latest snapshot and to enumerate snapshots for retention.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB). Snapshots
	// at or above this size are uploaded via UploadMultipart instead of a
	// single PUT.
	PartSize int64
	// Concurrency is carried in the config (default: 5) but not read:
	// S3Storage uploads the parts of a multipart upload one at a time.
	Concurrency int
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    5 * 1024 * 1024, // 5MB
		Concurrency: 5,
	}
}
