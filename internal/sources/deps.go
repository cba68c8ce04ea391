package sources

import (
	"context"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

const depsCatalogPath = "/product/"

var (
	depsLength = regexp.MustCompile(`(?i)(?:全長|length)\s*[:：]?\s*([0-9.]+\s*(?:mm|cm|inch|in)?)`)
	depsWeight = regexp.MustCompile(`(?i)(?:自重|重さ|ウエイト|weight)\s*[:：]?\s*((?:[0-9./・,\s]+(?:g|oz)[\s/・,]*)+)`)
	depsPrice  = regexp.MustCompile(`(?i)(?:価格|price)\s*[:：]?\s*((?:本体価格\s*)?[¥￥]?\s*[0-9,]+\s*円?\s*(?:[(（]?\s*(?:税抜|税別|税込)\s*[)）]?)?)`)
)

// DepsWeb builds its product pages client side, so they are rendered in a
// headless browser and spec values are read from the rendered text by
// pattern. With rendering disabled the server HTML is used as is.
type DepsWeb struct {
	base
}

func newDepsWeb(src models.Source, deps Deps) interfaces.Adapter {
	return &DepsWeb{base: newBase(src, deps)}
}

func (a *DepsWeb) load(ctx context.Context, rawURL string) (*models.Page, *goquery.Document, error) {
	if a.deps.Renderer == nil || !a.deps.Renderer.Enabled() {
		return a.document(ctx, rawURL)
	}

	page, err := a.deps.Renderer.Render(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(page.Reader())
	if err != nil {
		return nil, nil, &models.ParseError{URL: rawURL, Field: "html", Reason: err.Error()}
	}
	return page, doc, nil
}

func (a *DepsWeb) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.load(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	specText := normalize.FoldWidth(normalize.CollapseSpace(doc.Find(".spec, .product-spec").First().Text()))

	p := product{
		Name:        firstText(doc.Selection, ".product-title h2", ".product-title", "h1"),
		NameKana:    firstText(doc.Selection, ".product-title .kana", ".product-kana"),
		Category:    firstText(doc.Selection, ".product-category"),
		Description: normalize.DescriptionFromSelection(doc.Find(".product-text").First(), page.URL),
		Images:      images(page, doc.Selection, ".product-main img", ".main-visual img"),
	}
	if m := depsLength.FindStringSubmatch(specText); m != nil {
		p.LengthMM = normalize.Length(m[1])
	}
	if m := depsPrice.FindStringSubmatch(specText); m != nil {
		p.Price = normalize.Price(m[1])
	}
	var weights models.Weights
	if m := depsWeight.FindStringSubmatch(specText); m != nil {
		weights = normalize.ParseWeights(m[1])
	}

	var colors []normalize.Color
	doc.Find(".color-list .color-item").Each(func(_ int, item *goquery.Selection) {
		colors = append(colors, normalize.Color{
			Name:        firstText(item, ".color-name"),
			Description: firstText(item, ".color-text"),
			Image:       page.Resolve(imageSrc(item.Find("img").First())),
		})
	})
	p.Variants = normalize.CrossProduct(normalize.UniqueColors(colors), weights)

	return a.records(rawURL, p)
}

func (a *DepsWeb) ListProducts(ctx context.Context) ([]string, error) {
	page, doc, err := a.document(ctx, a.url(depsCatalogPath))
	if err != nil {
		return nil, err
	}
	return links(page, doc.Selection, `a[href*="/product/"]`, func(u string) bool {
		return a.Owns(u) && pathUnder(u, depsCatalogPath)
	}), nil
}
