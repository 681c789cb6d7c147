package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single Upload call.
const uploadTimeout = 2 * time.Minute

// GCSStorageService reads and writes Cloud Storage objects. It assumes
// Application Default Credentials are configured.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// Open implements Opener for gs:// URIs. Closing the returned reader also
// closes the storage client.
func (s *GCSStorageService) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Open: creating storage client: %w", err)
	}

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("Open: reading object %s/%s: %w", bucket, object, err)
	}

	return &clientReader{ReadCloser: rc, client: client}, nil
}

// Upload copies a local file to bucket/object and returns its gs:// URI.
func (s *GCSStorageService) Upload(ctx context.Context, bucket, object, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return GCSURI(bucket, object), nil
}

type clientReader struct {
	io.ReadCloser
	client *storage.Client
}

func (r *clientReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Ensure GCSStorageService implements Opener interface.
var _ Opener = (*GCSStorageService)(nil)
