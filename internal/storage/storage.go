// Package storage persists uploaded registration documents. References handed
// back to callers are opaque strings; only the store that issued a reference
// can resolve or delete it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kmun/registration-service/internal/config"
)

// ErrInvalidReference is returned for references the store did not issue.
var ErrInvalidReference = errors.New("invalid artifact reference")

// ArtifactStore saves and removes uploaded files.
type ArtifactStore interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// New builds the backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (ArtifactStore, error) {
	switch cfg.Backend {
	case "gcs":
		return NewGCSStore(ctx, cfg)
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

// objectName derives a collision-free object name that keeps the upload's
// extension.
func objectName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return uuid.NewString() + ext
}
