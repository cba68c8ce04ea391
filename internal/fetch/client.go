// Package fetch retrieves source pages over HTTP or through a headless
// browser and turns transport failures into *models.FetchError.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/net/html/charset"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/models"
)

// ErrBodyTooLarge is wrapped in a FetchError when a response exceeds max_body_size
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Client fetches pages with retry, a body size cap and charset decoding
type Client struct {
	http           *http.Client
	userAgent      string
	acceptLanguage string
	maxBodySize    int64
	retry          *RetryPolicy
	logger         arbor.ILogger
}

// NewClient creates a client from the [fetch] configuration
func NewClient(cfg common.FetchConfig, logger arbor.ILogger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}

	return &Client{
		http:           &http.Client{Timeout: timeout},
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		maxBodySize:    maxBody,
		retry:          NewRetryPolicy(cfg.MaxAttempts, cfg.InitialBackoff, cfg.MaxBackoff),
		logger:         logger,
	}
}

// Get fetches rawURL, retrying transient failures
func (c *Client) Get(ctx context.Context, rawURL string) (*models.Page, error) {
	var page *models.Page
	err := c.retry.Do(ctx, c.logger, func() error {
		p, err := c.get(ctx, rawURL)
		page = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*models.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &models.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, &models.FetchError{URL: rawURL, Err: ErrBodyTooLarge}
	}

	contentType := resp.Header.Get("Content-Type")
	body = decodeBody(body, contentType)

	c.logger.Trace().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched page")

	return &models.Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// decodeBody converts textual responses to UTF-8 using the Content-Type
// charset, a BOM, or a <meta charset> prescan. JSON is always UTF-8.
func decodeBody(body []byte, contentType string) []byte {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if strings.Contains(mediaType, "json") || strings.HasPrefix(mediaType, "image/") {
		return body
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || enc == nil {
		return body
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}
