package uploads

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrMalformedDataURL = errors.New("uploads: malformed data url")
	ErrNotImage         = errors.New("uploads: payload is not an image")
	ErrTooLarge         = errors.New("uploads: payload too large")
)

// DiskUploader stores image attachments on local disk and returns a public URL
// under baseURL.
type DiskUploader struct {
	dir      string
	baseURL  string
	maxBytes int64
}

func NewDiskUploader(dir, baseURL string, maxBytes int64) (*DiskUploader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("uploads: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &DiskUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Upload accepts a base64 data URL ("data:image/png;base64,...") or bare base64 and
// returns the URL of the stored file. The content type is sniffed from the bytes;
// the declared one is ignored.
func (u *DiskUploader) Upload(ctx context.Context, data string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := decodeDataURL(data)
	if err != nil {
		return "", err
	}
	if u.maxBytes > 0 && int64(len(raw)) > u.maxBytes {
		return "", ErrTooLarge
	}

	mt := mimetype.Detect(raw)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}

	name := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(u.dir, name), raw, 0o644); err != nil {
		return "", fmt.Errorf("uploads: write: %w", err)
	}
	return path.Join(u.baseURL, name), nil
}

func decodeDataURL(data string) ([]byte, error) {
	payload := strings.TrimSpace(data)
	if payload == "" {
		return nil, ErrMalformedDataURL
	}
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, ErrMalformedDataURL
		}
		payload = payload[comma+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataURL, err)
	}
	if len(raw) == 0 {
		return nil, ErrMalformedDataURL
	}
	return raw, nil
}
