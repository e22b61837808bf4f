// Package storage provides object storage for published migration scripts.
package storage

import (
	"context"
	"errors"
	"path"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ScriptPrefix is the prefix under which plan scripts are stored.
const ScriptPrefix = "plans/"

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	// Returns the ETag of the stored object.
	Put(ctx context.Context, objectPath string, data []byte) (string, error)

	// Get reads the object at objectPath.
	// Returns ErrObjectNotFound if it does not exist.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object from storage. Deleting a missing object is
	// not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	// Used by reconciliation to detect orphaned scripts.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// ScriptPath returns the object path of the script for a plan.
func ScriptPath(planID string) string {
	return path.Join(ScriptPrefix, planID+".sql")
}
