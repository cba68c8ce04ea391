package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestParseSitemap(t *testing.T) {
	nested, pages, err := ParseSitemap([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc> https://example.test/products/a/ </loc></url>
  <url><loc>https://example.test/products/b/</loc></url>
</urlset>`))
	require.NoError(t, err)
	assert.Empty(t, nested)
	assert.Equal(t, []string{"https://example.test/products/a/", "https://example.test/products/b/"}, pages)

	nested, pages, err = ParseSitemap([]byte(`<sitemapindex><sitemap><loc>https://example.test/s1.xml</loc></sitemap></sitemapindex>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.test/s1.xml"}, nested)
	assert.Empty(t, pages)

	_, _, err = ParseSitemap([]byte("not xml"))
	assert.Error(t, err)
}

func TestSitemap_FollowsIndexAndFilters(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%[1]s/s1.xml</loc></sitemap><sitemap><loc>%[1]s/missing.xml</loc></sitemap><sitemap><loc>%[1]s/s2.xml</loc></sitemap></sitemapindex>`, base)
	})
	mux.HandleFunc("/s1.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset><url><loc>%[1]s/products/a/</loc></url><url><loc>%[1]s/news/1/</loc></url></urlset>`, base)
	})
	mux.HandleFunc("/s2.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset><url><loc>%[1]s/products/b/</loc></url><url><loc>%[1]s/products/a/</loc></url></urlset>`, base)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	base = server.URL

	cfg := testFetchConfig()
	cfg.MaxAttempts = 1
	client := NewClient(cfg, arbor.NewLogger())

	urls, err := Sitemap(context.Background(), client, arbor.NewLogger(), base+"/sitemap.xml", func(u string) bool {
		return strings.Contains(u, "/products/")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{base + "/products/a/", base + "/products/b/"}, urls)
}

func TestSitemap_RootFailureIsError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	cfg := testFetchConfig()
	cfg.MaxAttempts = 1
	client := NewClient(cfg, arbor.NewLogger())

	_, err := Sitemap(context.Background(), client, arbor.NewLogger(), server.URL+"/sitemap.xml", nil)
	assert.Error(t, err)
}
