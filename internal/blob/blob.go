// Package blob fetches uploaded session files into the local work directory.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Store downloads a stored object to a local file.
type Store interface {
	Download(ctx context.Context, objectPath, dest string) error
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object.
// A path without the gs:// scheme is returned as an object with no bucket.
func ParseGCSURI(uri string) (bucket, object string) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", strings.TrimPrefix(uri, "/")
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// BaseName returns the file name of an object path or gs:// URI.
func BaseName(uri string) string {
	_, object := ParseGCSURI(uri)
	return path.Base(object)
}

// GCSStore reads objects from a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store for bucket. Objects given as full gs:// URIs
// may name a different bucket.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Download implements Store.
func (s *GCSStore) Download(ctx context.Context, objectPath, dest string) error {
	bucket, object := ParseGCSURI(objectPath)
	if bucket == "" {
		bucket = s.bucket
	}
	if bucket == "" || object == "" {
		return fmt.Errorf("download %q: bucket and object are required", objectPath)
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open GCS object reader %s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	return writeFile(dest, r)
}

// DirStore serves objects from a local directory. Object paths are resolved
// relative to Root and may not escape it.
type DirStore struct {
	Root string
}

// Download implements Store.
func (s DirStore) Download(ctx context.Context, objectPath, dest string) error {
	_, object := ParseGCSURI(objectPath)
	src := filepath.Join(s.Root, filepath.FromSlash(object))
	rel, err := filepath.Rel(s.Root, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("download %q: path escapes %s", objectPath, s.Root)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	return writeFile(dest, f)
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return nil
}

var (
	_ Store = (*GCSStore)(nil)
	_ Store = DirStore{}
)
