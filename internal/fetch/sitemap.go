package fetch

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/net/html/charset"

	"github.com/ternarybob/tacklebox/internal/interfaces"
)

const (
	maxSitemapFetches = 200
	maxSitemapURLs    = 20000
)

type sitemapIndex struct {
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type urlSet struct {
	URLs []sitemapEntry `xml:"url"`
}

type sitemapEntry struct {
	Location string `xml:"loc"`
}

func unmarshalXML(data []byte, v interface{}) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	return dec.Decode(v)
}

// ParseSitemap returns the nested sitemaps of a sitemap index, or the page
// URLs of a urlset
func ParseSitemap(data []byte) (sitemaps []string, pages []string, err error) {
	var index sitemapIndex
	if err := unmarshalXML(data, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Location); loc != "" {
				sitemaps = append(sitemaps, loc)
			}
		}
		return sitemaps, nil, nil
	}

	var set urlSet
	if err := unmarshalXML(data, &set); err != nil {
		return nil, nil, fmt.Errorf("parse sitemap: %w", err)
	}
	for _, entry := range set.URLs {
		if loc := strings.TrimSpace(entry.Location); loc != "" {
			pages = append(pages, loc)
		}
	}
	return nil, pages, nil
}

// Sitemap walks a sitemap (following sitemap indexes) and returns the page
// URLs accepted by keep, deduplicated in document order. A failing nested
// sitemap is skipped; a failing root sitemap is an error.
func Sitemap(ctx context.Context, fetcher interfaces.PageFetcher, logger arbor.ILogger, sitemapURL string, keep func(string) bool) ([]string, error) {
	queue := []string{sitemapURL}
	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var out []string

	for len(queue) > 0 && len(visited) < maxSitemapFetches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		page, err := fetcher.Get(ctx, current)
		if err != nil {
			if current == sitemapURL {
				return nil, err
			}
			logger.Warn().Err(err).Str("sitemap", current).Msg("Failed to fetch nested sitemap, continuing")
			continue
		}

		nested, pages, err := ParseSitemap(page.Body)
		if err != nil {
			if current == sitemapURL {
				return nil, fmt.Errorf("%s: %w", current, err)
			}
			logger.Warn().Err(err).Str("sitemap", current).Msg("Failed to parse nested sitemap, continuing")
			continue
		}

		queue = append(queue, nested...)
		for _, u := range pages {
			if seen[u] || (keep != nil && !keep(u)) {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}

		if len(out) >= maxSitemapURLs {
			logger.Warn().Str("sitemap", sitemapURL).Int("cap", maxSitemapURLs).Msg("Sitemap URL count exceeds limit, truncating")
			return out[:maxSitemapURLs], nil
		}
	}

	return out, nil
}
