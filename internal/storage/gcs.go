package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kmun/registration-service/internal/config"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStore connects using the credentials file when one is configured and
// application default credentials otherwise.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.GCSBucket, prefix: strings.Trim(cfg.GCSPrefix, "/")}, nil
}

// Save streams r into a new object and returns a gs:// reference.
func (s *GCSStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	key := path.Join(s.prefix, objectName(name))

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.CacheControl = "private, no-store"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return s.reference(key), nil
}

// Delete removes the referenced object. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) reference(key string) string {
	return "gs://" + s.bucket + "/" + key
}

func (s *GCSStore) key(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, "gs://"+s.bucket+"/")
	if !ok || rest == "" {
		return "", ErrInvalidReference
	}
	return rest, nil
}
