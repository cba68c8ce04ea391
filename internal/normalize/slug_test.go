package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/products/vision-110/", "vision-110"},
		{"https://example.com/products/vision-110", "vision-110"},
		{"https://example.com/lure/item/popx.html", "popx"},
		{"https://example.com/products/Dog-X_Jr", "dog-x-jr"},
		{"https://example.com/shop/index.php?id=123", "id-123"},
		{"https://example.com/ja/products/", "example-com-ja-products"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestSlugFromName_Deterministic(t *testing.T) {
	assert.Equal(t, "product-55", SlugFromName("Product 55"))
	assert.Equal(t, SlugFromName("Product 55"), SlugFromName("Product 55"))
	assert.Equal(t, "vision-110-jr", SlugFromName("ＶＩＳＩＯＮ １１０ Ｊｒ."))

	kana := SlugFromName("ポップマックス")
	assert.Regexp(t, `^p-[0-9a-f]{8}$`, kana)
	assert.Equal(t, kana, SlugFromName("ポップマックス"))
	assert.NotEqual(t, kana, SlugFromName("ワンテンハイ"))

	assert.Equal(t, "", SlugFromName("  "))
}
