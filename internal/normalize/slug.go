package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

	// Path segments that never identify a product on their own
	genericSegments = map[string]bool{
		"":         true,
		"index":    true,
		"products": true,
		"product":  true,
		"item":     true,
		"items":    true,
		"detail":   true,
		"details":  true,
		"lure":     true,
		"lures":    true,
		"shop":     true,
		"ja":       true,
		"jp":       true,
		"en":       true,
		"p":        true,
	}
)

func slugify(s string) string {
	s = strings.ToLower(FoldWidth(s))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func hashSlug(s string) string {
	sum := sha1.Sum([]byte(s))
	return "p-" + hex.EncodeToString(sum[:4])
}

// SlugFromName derives a slug from a product name ("Product 55" -> "product-55").
// Names without any ASCII letters or digits get a short stable hash.
func SlugFromName(name string) string {
	name = strings.TrimSpace(name)
	if s := slugify(name); s != "" {
		return s
	}
	if name == "" {
		return ""
	}
	return hashSlug(name)
}

// Slug derives a slug from the last meaningful path segment of a source URL.
// The query string is used when the path carries no identifier (?id=123).
func Slug(sourceURL string) string {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return SlugFromName(sourceURL)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg, err := url.PathUnescape(segments[i])
		if err != nil {
			seg = segments[i]
		}
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		if genericSegments[strings.ToLower(seg)] {
			continue
		}
		return SlugFromName(seg)
	}

	if q := u.Query(); len(q) > 0 {
		for _, key := range []string{"id", "product_id", "pid", "p", "item"} {
			if v := q.Get(key); v != "" {
				return SlugFromName(key + "-" + v)
			}
		}
	}

	return SlugFromName(u.Host + u.Path)
}
