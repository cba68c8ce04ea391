// -----------------------------------------------------------------------
// Image Store
// Writes mirrored product images below a local directory
// -----------------------------------------------------------------------

package images

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
)

// ErrInvalidPath is returned when a relative image path escapes the store
var ErrInvalidPath = errors.New("invalid image path")

// FileStore implements interfaces.ImageStore on the local filesystem
type FileStore struct {
	dir           string
	publicBaseURL string
	maxSize       int64
	logger        arbor.ILogger
}

// NewFileStore creates the image directory and returns a store writing into it
func NewFileStore(cfg common.ImagesConfig, logger arbor.ILogger) (*FileStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}

	return &FileStore{
		dir:           cfg.Dir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxSize:       maxSize,
		logger:        logger,
	}, nil
}

// Put writes data to dir/p and returns public_base_url/p.
// Existing files are replaced atomically.
func (s *FileStore) Put(ctx context.Context, data []byte, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("image %s is %d bytes, limit is %d", rel, len(data), s.maxSize)
	}

	fullPath := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".img-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename: %w", err)
	}

	s.logger.Debug().
		Str("path", rel).
		Int("size", len(data)).
		Msg("Image stored")

	return s.publicBaseURL + "/" + rel, nil
}

// Exists reports whether a relative path is already stored
func (s *FileStore) Exists(p string) bool {
	rel, err := cleanPath(p)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(s.dir, filepath.FromSlash(rel)))
	return err == nil
}

// PublicURL returns the URL a relative path is served under
func (s *FileStore) PublicURL(p string) string {
	rel, err := cleanPath(p)
	if err != nil {
		return ""
	}
	return s.publicBaseURL + "/" + rel
}

// cleanPath normalizes a slash separated relative path and rejects traversal
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	rel := path.Clean(p)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return rel, nil
}
