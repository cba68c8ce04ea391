package sources

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
	"github.com/ternarybob/tacklebox/internal/pager"
)

const evergreenPageSize = 250

var evergreenLength = regexp.MustCompile(`(?i)(?:全長|length)\s*[:：]?\s*([0-9０-９.．]+\s*(?:mm|ｍｍ|cm|inch|in)?)`)

// Evergreen runs on Shopify: product data comes from products/<handle>.js
// with option1 as color and option2 as weight, prices in hundredths of a yen
type Evergreen struct {
	base
}

func newEvergreen(src models.Source, deps Deps) interfaces.Adapter {
	return &Evergreen{base: newBase(src, deps)}
}

func (a *Evergreen) handle(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &models.ParseError{URL: rawURL, Field: "url", Reason: err.Error()}
	}
	dir, handle := path.Split(strings.TrimSuffix(u.Path, "/"))
	if !strings.HasSuffix(dir, "/products/") || handle == "" {
		return "", &models.ParseError{URL: rawURL, Field: "url", Reason: "not a product URL"}
	}
	return strings.TrimSuffix(handle, ".js"), nil
}

func (a *Evergreen) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}
	handle, err := a.handle(rawURL)
	if err != nil {
		return nil, err
	}

	page, err := a.deps.Fetcher.Get(ctx, a.url("/products/"+handle+".js"))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(page.Body) {
		return nil, &models.ParseError{URL: rawURL, Field: "json", Reason: "product JSON is not valid"}
	}
	data := gjson.ParseBytes(page.Body)

	descriptionHTML := data.Get("description").String()
	p := product{
		Name:        data.Get("title").String(),
		Category:    data.Get("type").String(),
		Description: normalize.Description(descriptionHTML, rawURL),
	}
	for _, tag := range data.Get("tags").Array() {
		if sp, ok := a.deps.Classifier.MatchSpecies(tag.String()); ok {
			p.SpeciesTags = append(p.SpeciesTags, sp)
		}
	}
	for _, img := range data.Get("images").Array() {
		p.Images = append(p.Images, page.Resolve(img.String()))
	}
	if m := evergreenLength.FindStringSubmatch(normalize.CollapseSpace(p.Description)); m != nil {
		p.LengthMM = normalize.Length(m[1])
	}

	colorOpt, weightOpt := a.optionKeys(data.Get("options"))
	for _, v := range data.Get("variants").Array() {
		variant := normalize.Variant{
			Color: normalize.Color{
				Name:  v.Get(colorOpt).String(),
				Image: page.Resolve(v.Get("featured_image.src").String()),
			},
		}
		if weightOpt != "" {
			variant.Weight = normalize.ParseWeights(v.Get(weightOpt).String())
		}
		if cents := v.Get("price"); cents.Exists() {
			variant.Price = yenFromCents(cents.Int())
		}
		if variant.Color.Name == "Default Title" {
			variant.Color.Name = ""
		}
		p.Variants = append(p.Variants, variant)
	}
	if len(p.Variants) == 0 {
		if cents := data.Get("price"); cents.Exists() {
			p.Price = yenFromCents(cents.Int())
		}
	}

	return a.records(rawURL, p)
}

// optionKeys finds which variant option holds the color and which the weight.
// Options may be plain names or {name, position} objects; defaults are
// option1 for color and option2 for weight.
func (a *Evergreen) optionKeys(options gjson.Result) (color, weight string) {
	color, weight = "option1", "option2"
	colorSet, weightSet := false, false
	for i, opt := range options.Array() {
		name := opt.String()
		if opt.IsObject() {
			name = opt.Get("name").String()
		}
		name = strings.ToLower(normalize.FoldWidth(name))
		key := fmt.Sprintf("option%d", i+1)
		switch {
		case !colorSet && (strings.Contains(name, "color") || strings.Contains(name, "colour") || strings.Contains(name, "カラー")):
			color, colorSet = key, true
		case !weightSet && (strings.Contains(name, "weight") || strings.Contains(name, "ウエイト") || strings.Contains(name, "重さ")):
			weight, weightSet = key, true
		}
	}
	if len(options.Array()) == 1 && !weightSet {
		weight = ""
	}
	return color, weight
}

func yenFromCents(cents int64) *int {
	if cents <= 0 {
		return nil
	}
	yen := int(cents / 100)
	if yen < normalize.MinPrice || yen > normalize.MaxPrice {
		return nil
	}
	return &yen
}

func (a *Evergreen) ListProducts(ctx context.Context) ([]string, error) {
	fetchPage := func(ctx context.Context, after string, size int) (pager.Page[string], error) {
		pageNo := 1
		if after != "" {
			n, err := strconv.Atoi(after)
			if err != nil {
				return pager.Page[string]{}, fmt.Errorf("bad page cursor %q: %w", after, err)
			}
			pageNo = n
		}

		listURL := fmt.Sprintf("%s?limit=%d&page=%d", a.url("/products.json"), size, pageNo)
		page, err := a.deps.Fetcher.Get(ctx, listURL)
		if err != nil {
			return pager.Page[string]{}, err
		}

		var urls []string
		for _, h := range gjson.GetBytes(page.Body, "products.#.handle").Array() {
			if h.String() != "" {
				urls = append(urls, a.url("/products/"+h.String()))
			}
		}

		result := pager.Page[string]{Items: urls}
		if len(urls) >= size {
			result.Next = strconv.Itoa(pageNo + 1)
		}
		return result, nil
	}

	return pager.All(ctx, evergreenPageSize, 0, fetchPage)
}
