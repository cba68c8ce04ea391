package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
)

// Mirror downloads record images and hands them to an ImageStore.
// Failures are logged and counted, never returned to the caller's workflow.
type Mirror struct {
	fetcher interfaces.PageFetcher
	store   interfaces.ImageStore
	logger  arbor.ILogger

	// source URL -> public URL of images already mirrored by this process
	seen   map[string]string
	seenMu sync.RWMutex
}

// Throttle blocks until the source host may be requested again. The
// returned release func is called once the download is finished.
type Throttle func(ctx context.Context) (release func(), err error)

// MirrorResult summarizes one Records call
type MirrorResult struct {
	Stored  int
	Cached  int
	Failed  int
	Mapping map[string]string // source URL -> public URL
}

// NewMirror creates a mirror using fetcher for downloads
func NewMirror(fetcher interfaces.PageFetcher, store interfaces.ImageStore, logger arbor.ILogger) *Mirror {
	return &Mirror{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		seen:    make(map[string]string),
	}
}

// Records mirrors every distinct image referenced by records.
// Images are stored under <source_slug>/<hash[:2]>/<hash><ext>. Each download
// waits on throttle when it is not nil.
func (m *Mirror) Records(ctx context.Context, records []*models.RawRecord, throttle Throttle) MirrorResult {
	result := MirrorResult{Mapping: make(map[string]string)}

	for _, rec := range records {
		for _, imageURL := range rec.Images {
			if imageURL == "" {
				continue
			}
			if _, done := result.Mapping[imageURL]; done {
				continue
			}
			if err := ctx.Err(); err != nil {
				return result
			}

			m.seenMu.RLock()
			public, cached := m.seen[imageURL]
			m.seenMu.RUnlock()
			if cached {
				result.Mapping[imageURL] = public
				result.Cached++
				continue
			}

			public, err := m.one(ctx, rec.SourceSlug, imageURL, throttle)
			if err != nil {
				result.Failed++
				m.logger.Warn().
					Err(err).
					Str("image_url", imageURL).
					Str("source_url", rec.SourceURL).
					Msg("Failed to mirror image")
				continue
			}

			m.seenMu.Lock()
			m.seen[imageURL] = public
			m.seenMu.Unlock()

			result.Mapping[imageURL] = public
			result.Stored++
		}
	}

	return result
}

func (m *Mirror) one(ctx context.Context, sourceSlug, imageURL string, throttle Throttle) (string, error) {
	page, err := m.download(ctx, imageURL, throttle)
	if err != nil {
		return "", err
	}

	mediaType, _, _ := mime.ParseMediaType(page.ContentType)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("not an image: %s", page.ContentType)
	}
	if len(page.Body) == 0 {
		return "", fmt.Errorf("empty image body")
	}

	sum := sha256.Sum256(page.Body)
	hash := hex.EncodeToString(sum[:])

	ext := extensionFor(mediaType)
	if ext == "" {
		ext = extensionFromURL(imageURL)
	}
	if ext == "" {
		ext = ".bin"
	}

	slug := sourceSlug
	if slug == "" {
		slug = "unknown"
	}

	return m.store.Put(ctx, page.Body, path.Join(slug, hash[:2], hash+ext))
}

func (m *Mirror) download(ctx context.Context, imageURL string, throttle Throttle) (*models.Page, error) {
	if throttle != nil {
		release, err := throttle(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return m.fetcher.Get(ctx, imageURL)
}

func extensionFor(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	case "image/svg+xml":
		return ".svg"
	default:
		return ""
	}
}

func extensionFromURL(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return ""
	}
	switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".svg":
		return ext
	default:
		return ""
	}
}
