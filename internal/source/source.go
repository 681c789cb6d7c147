// Package source opens the CSV files behind import batches. Batches store a
// URI: gs://bucket/object for Cloud Storage, file:///path or a plain path
// for the local filesystem.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

const (
	gcsScheme  = "gs://"
	fileScheme = "file://"
)

// ErrUnsupportedScheme is returned for URIs that are neither gs:// nor local.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// Opener opens a stored file for reading.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Router dispatches on the URI scheme. A nil GCS opener rejects gs:// URIs.
type Router struct {
	GCS Opener
}

// NewRouter returns a Router that reads Cloud Storage objects through GCS.
func NewRouter() *Router {
	return &Router{GCS: NewGCSStorageService()}
}

// Open implements Opener.
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(uri, gcsScheme):
		if r.GCS == nil {
			return nil, fmt.Errorf("Open: %s: %w", uri, ErrUnsupportedScheme)
		}
		return r.GCS.Open(ctx, uri)
	case strings.HasPrefix(uri, fileScheme):
		return openLocal(strings.TrimPrefix(uri, fileScheme))
	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("Open: %s: %w", uri, ErrUnsupportedScheme)
	default:
		return openLocal(uri)
	}
}

func openLocal(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open file %q: %w", p, err)
	}
	return f, nil
}

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// GCSURI builds gs://bucket/object.
func GCSURI(bucket, object string) string {
	return gcsScheme + bucket + "/" + object
}

// Filename returns the last path element of a URI or path,
// e.g. "gs://bucket/folder/file.csv" gives "file.csv".
func Filename(uri string) string {
	trimmed := uri
	switch {
	case strings.HasPrefix(uri, gcsScheme):
		trimmed = strings.TrimPrefix(uri, gcsScheme)
		parts := strings.SplitN(trimmed, "/", 2)
		if len(parts) < 2 {
			return trimmed
		}
		trimmed = parts[1]
	case strings.HasPrefix(uri, fileScheme):
		trimmed = strings.TrimPrefix(uri, fileScheme)
	}
	return path.Base(strings.ReplaceAll(trimmed, "\\", "/"))
}

// Ensure Router implements Opener interface.
var _ Opener = (*Router)(nil)
