package uploads

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func TestUploadStoresImage(t *testing.T) {
	dir := t.TempDir()
	u, err := NewDiskUploader(dir, "/uploads/", 1<<20)
	require.NoError(t, err)

	url, err := u.Upload(context.Background(), "data:image/png;base64,"+pixelPNG)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	expected, _ := base64.StdEncoding.DecodeString(pixelPNG)
	assert.Equal(t, expected, stored)
}

func TestUploadRejects(t *testing.T) {
	u, err := NewDiskUploader(t.TempDir(), "", 16)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = u.Upload(ctx, "data:image/png,"+pixelPNG)
	assert.ErrorIs(t, err, ErrMalformedDataURL)

	_, err = u.Upload(ctx, "not base64!")
	assert.ErrorIs(t, err, ErrMalformedDataURL)

	_, err = u.Upload(ctx, "data:image/png;base64,"+pixelPNG)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = u.Upload(ctx, base64.StdEncoding.EncodeToString([]byte("hello")))
	assert.ErrorIs(t, err, ErrNotImage)
}
