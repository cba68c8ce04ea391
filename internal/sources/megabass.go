package sources

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/fetch"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

// Megabass product pages carry a JSON-LD Product block for name, images and
// offer price; colors come from ul.color-list and lengths/weights from the
// spec table. Every color is offered in every listed weight.
type Megabass struct {
	base
}

func newMegabass(src models.Source, deps Deps) interfaces.Adapter {
	return &Megabass{base: newBase(src, deps)}
}

func (a *Megabass) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var p product
	if ld, ok := jsonLDProduct(doc); ok {
		p.Name = ld.Get("name").String()
		p.Category = ld.Get("category").String()
		p.Description = normalize.Description(ld.Get("description").String(), page.URL)
		for _, img := range stringList(ld.Get("image")) {
			if abs := page.Resolve(img); abs != "" {
				p.Images = append(p.Images, abs)
			}
		}
		if price := ld.Get("offers.price"); price.Exists() {
			p.Price = normalize.Price(price.String())
		} else if price := ld.Get("offers.0.price"); price.Exists() {
			p.Price = normalize.Price(price.String())
		}
	}

	if p.Name == "" {
		p.Name = firstText(doc.Selection, "h1.product-title", "h1")
	}
	p.NameKana = firstText(doc.Selection, ".product-title-kana", ".product-kana")
	if len(p.Images) == 0 {
		p.Images = images(page, doc.Selection, ".product-main-image img", ".main-visual img")
	}
	if p.Description == "" {
		p.Description = normalize.DescriptionFromSelection(doc.Find(".product-description").First(), page.URL)
	}

	table := specTable(doc.Find("table.spec-table, table.spec").First())
	p.LengthMM = normalize.Length(table.get("Length", "全長"))
	if p.Price == nil {
		p.Price = normalize.Price(table.get("Price", "価格"))
	}
	if p.Category == "" {
		p.Category = table.get("Type", "タイプ")
	}
	weights := normalize.ParseWeights(table.get("Weight", "自重", "重さ"))

	var colors []normalize.Color
	doc.Find("ul.color-list li").Each(func(_ int, li *goquery.Selection) {
		name, _ := li.Attr("data-color")
		if name == "" {
			name = firstText(li, ".color-name", "p", "span")
		}
		colors = append(colors, normalize.Color{
			Name:        name,
			Description: firstText(li, ".color-description", ".color-code"),
			Image:       page.Resolve(imageSrc(li.Find("img").First())),
		})
	})
	p.Variants = normalize.CrossProduct(normalize.UniqueColors(colors), weights)

	return a.records(rawURL, p)
}

func (a *Megabass) ListProducts(ctx context.Context) ([]string, error) {
	return fetch.Sitemap(ctx, a.deps.Fetcher, a.logger, a.url("/sitemap.xml"), func(u string) bool {
		return a.Owns(u) && pathUnder(u, "/site/products")
	})
}
