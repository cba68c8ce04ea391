package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tacklebox/internal/common"
)

func TestNewRegistry_AllSources(t *testing.T) {
	reg := NewRegistry(testDeps(), nil)

	assert.Equal(t, []string{
		"daiwa", "deps", "duo", "evergreen", "imakatsu",
		"jackall", "megabass", "osp", "tacklehouse", "zipbaits",
	}, reg.IDs())
	assert.Equal(t, KnownIDs(), reg.IDs())

	for _, src := range reg.Sources() {
		assert.NotEmpty(t, src.Slug, src.ID)
		assert.NotEmpty(t, src.Name, src.ID)
		assert.Regexp(t, `^https://`, src.BaseURL, src.ID)
	}
}

func TestNewRegistry_Overrides(t *testing.T) {
	reg := NewRegistry(testDeps(), map[string]common.SourceConfig{
		"osp":     {BaseURL: "http://127.0.0.1:9999/"},
		"daiwa":   {Disabled: true},
		"unknown": {BaseURL: "http://ignored"},
	})

	_, ok := reg.Lookup("daiwa")
	assert.False(t, ok)
	assert.NotContains(t, reg.IDs(), "daiwa")
	assert.NotContains(t, reg.IDs(), "unknown")

	osp, ok := reg.Lookup("osp")
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:9999", osp.Source().BaseURL)
	assert.True(t, osp.Owns("http://127.0.0.1:9999/products/asura/"))
	assert.False(t, osp.Owns("https://www.o-s-p.net/products/asura/"))
}

func TestRegistry_ForURL(t *testing.T) {
	reg := NewRegistry(testDeps(), nil)

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.megabass.co.jp/site/products/vision_110/", "megabass"},
		{"http://megabass.co.jp/site/products/vision_110/", "megabass"},
		{"https://WWW.ZIPBAITS.COM/item/rigge/", "zipbaits"},
		{"https://www.tacklehouse.co.jp/product/bks140.html", "tacklehouse"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			a, ok := reg.ForURL(tt.url)
			require.True(t, ok)
			assert.Equal(t, tt.want, a.Source().ID)
		})
	}

	_, ok := reg.ForURL("https://example.com/products/x")
	assert.False(t, ok)
	_, ok = reg.ForURL("ftp://www.megabass.co.jp/file")
	assert.False(t, ok)
	_, ok = reg.ForURL("not a url")
	assert.False(t, ok)
}
