package models

import (
	"bytes"
	"io"
	"net/url"
	"strings"
)

// Page is a fetched (or browser-rendered) document, body decoded to UTF-8
type Page struct {
	URL         string // Final URL after redirects
	StatusCode  int
	ContentType string
	Body        []byte
	Rendered    bool // Produced by the headless browser
}

// Reader returns a reader over the body
func (p *Page) Reader() io.Reader {
	return bytes.NewReader(p.Body)
}

// Resolve turns a reference found in the page into an absolute URL.
// Empty, javascript: and data: references resolve to "".
func (p *Page) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "data:") {
		return ""
	}
	base, err := url.Parse(p.URL)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}
