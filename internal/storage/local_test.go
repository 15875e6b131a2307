package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "passport.PDF", "application/pdf", strings.NewReader("scan"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".pdf"))

	path, err := store.Path(ref)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "scan", string(content))

	require.NoError(t, store.Delete(context.Background(), ref))
	_, err = os.Stat(filepath.Join(dir, ref))
	assert.True(t, os.IsNotExist(err))

	// Deleting twice is fine.
	assert.NoError(t, store.Delete(context.Background(), ref))
}

func TestLocalStoreRejectsForeignReferences(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../etc/passwd", "nested/file.pdf", ".env"} {
		assert.ErrorIs(t, store.Delete(context.Background(), ref), ErrInvalidReference, ref)
	}
}

func TestObjectNameDropsSuspiciousExtensions(t *testing.T) {
	assert.True(t, strings.HasSuffix(objectName("resume.docx"), ".docx"))
	assert.False(t, strings.Contains(objectName("weird.ext with space"), " "))
	assert.NotEqual(t, objectName("a.pdf"), objectName("a.pdf"))
}

func TestGCSReferenceRoundTrip(t *testing.T) {
	s := &GCSStore{bucket: "kmun-docs", prefix: "registrations"}
	key, err := s.key(s.reference("registrations/abc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "registrations/abc.pdf", key)

	_, err = s.key("gs://other-bucket/registrations/abc.pdf")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
