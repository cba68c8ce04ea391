package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
	"github.com/ternarybob/tacklebox/internal/pager"
)

const daiwaListPageSize = 100

// Daiwa renders product pages from a Next.js data blob. Each entry of
// product.specs is one color/weight item with its own price and length.
type Daiwa struct {
	base
}

func newDaiwa(src models.Source, deps Deps) interfaces.Adapter {
	return &Daiwa{base: newBase(src, deps)}
}

func (a *Daiwa) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if raw == "" || !gjson.Valid(raw) {
		return nil, &models.ParseError{URL: rawURL, Field: "__NEXT_DATA__", Reason: "page data not found"}
	}
	data := gjson.Get(raw, "props.pageProps.product")
	if !data.Exists() {
		return nil, &models.ParseError{URL: rawURL, Field: "product", Reason: "page data has no product"}
	}

	p := product{
		Name:        data.Get("name").String(),
		NameKana:    data.Get("nameKana").String(),
		Category:    data.Get("category").String(),
		Description: normalize.Description(data.Get("description").String(), page.URL),
	}
	for _, ft := range data.Get("fishTypes").Array() {
		p.SpeciesTags = append(p.SpeciesTags, ft.String())
	}
	for _, img := range stringList(data.Get("images")) {
		if abs := page.Resolve(img); abs != "" {
			p.Images = append(p.Images, abs)
		}
	}

	for _, s := range data.Get("specs").Array() {
		v := normalize.Variant{
			Color: normalize.Color{
				Name:        s.Get("color").String(),
				Description: s.Get("colorCode").String(),
				Image:       page.Resolve(s.Get("image").String()),
			},
			Weight:   daiwaWeights(s.Get("weight")),
			LengthMM: daiwaLength(s.Get("length")),
		}
		if price := s.Get("price"); price.Exists() {
			v.Price = normalize.Price(price.String())
		}
		p.Variants = append(p.Variants, v)
	}

	return a.records(rawURL, p)
}

// numbers are grams and millimetres; strings carry their own unit
func daiwaWeights(v gjson.Result) models.Weights {
	if v.Type == gjson.Number {
		return normalize.ParseWeights(v.Raw + "g")
	}
	return normalize.ParseWeights(v.String())
}

func daiwaLength(v gjson.Result) *float64 {
	if v.Type == gjson.Number {
		return normalize.Length(v.Raw + "mm")
	}
	return normalize.Length(v.String())
}

func (a *Daiwa) ListProducts(ctx context.Context) ([]string, error) {
	fetchPage := func(ctx context.Context, after string, size int) (pager.Page[string], error) {
		offset := 0
		if after != "" {
			n, err := strconv.Atoi(after)
			if err != nil {
				return pager.Page[string]{}, fmt.Errorf("bad page cursor %q: %w", after, err)
			}
			offset = n
		}

		page, err := a.deps.Fetcher.Get(ctx, fmt.Sprintf("%s?offset=%d&limit=%d", a.url("/api/products"), offset, size))
		if err != nil {
			return pager.Page[string]{}, err
		}
		if !gjson.ValidBytes(page.Body) {
			return pager.Page[string]{}, &models.ParseError{URL: page.URL, Field: "json", Reason: "invalid product list"}
		}

		items := gjson.GetBytes(page.Body, "items").Array()
		var urls []string
		for _, item := range items {
			if abs := page.Resolve(item.Get("url").String()); abs != "" && a.Owns(abs) {
				urls = append(urls, abs)
			}
		}

		result := pager.Page[string]{Items: urls}
		next := offset + len(items)
		if len(items) > 0 && int64(next) < gjson.GetBytes(page.Body, "total").Int() {
			result.Next = strconv.Itoa(next)
		}
		return result, nil
	}

	return pager.All(ctx, daiwaListPageSize, 0, fetchPage)
}
