// Package artifacts stores plugin output files produced by analysis
// dispatches. Artifacts live under keys derived from the result's composite
// key, so re-running a dispatch overwrites its previous outputs.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"labcore/pkg/domain"
)

// Driver identifies a concrete artifact storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // User metadata (small, flat key-value)
}

// Info describes a stored artifact.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store provides a thin S3-like abstraction for plugin output files.
// Unlike a content-addressed blob store, Put overwrites an existing key:
// artifacts follow the same upsert lifecycle as their analysis results.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is returned when no artifact exists at a key.
var ErrNotFound = errors.New("artifacts: not found")

// ResultPrefix returns the key prefix holding all artifacts of one analysis
// result.
func ResultPrefix(key domain.ResultKey) string {
	return fmt.Sprintf("results/%s/%s/%s/", key.ExperimentID, key.PluginName, key.Capability)
}

// ResultKeyFor builds the full artifact key for a named output file of one
// analysis result.
func ResultKeyFor(key domain.ResultKey, filename string) string {
	return ResultPrefix(key) + filename
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
