package sources

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/fetch"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

type ZipBaits struct {
	base
}

func newZipBaits(src models.Source, deps Deps) interfaces.Adapter {
	return &ZipBaits{base: newBase(src, deps)}
}

func (a *ZipBaits) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	table := specTable(doc.Find("table.item-spec").First())

	p := product{
		Name:        firstText(doc.Selection, "h1.item-name", "h1"),
		NameKana:    firstText(doc.Selection, "p.item-kana"),
		Category:    table.get("タイプ", "Type"),
		SpeciesTags: splitLabels(table.get("対象魚")),
		Description: normalize.DescriptionFromSelection(doc.Find(".item-text").First(), page.URL),
		LengthMM:    normalize.Length(table.get("全長", "Length")),
		Images:      images(page, doc.Selection, ".item-main img"),
	}
	if price := table.get("本体価格"); price != "" {
		if v, err := normalize.ParsePrice(price); err == nil {
			yen := normalize.TaxInclusive(v, true)
			p.Price = &yen
		}
	} else {
		p.Price = normalize.Price(table.get("価格", "Price"))
	}

	var colors []normalize.Color
	doc.Find(".item-colors li").Each(func(_ int, li *goquery.Selection) {
		colors = append(colors, normalize.Color{
			Name:        firstText(li, ".name", "span"),
			Description: firstText(li, ".no"),
			Image:       page.Resolve(imageSrc(li.Find("img").First())),
		})
	})
	p.Variants = normalize.CrossProduct(normalize.UniqueColors(colors), normalize.ParseWeights(table.get("自重", "重量", "Weight")))

	return a.records(rawURL, p)
}

func (a *ZipBaits) ListProducts(ctx context.Context) ([]string, error) {
	return fetch.Sitemap(ctx, a.deps.Fetcher, a.logger, a.url("/sitemap.xml"), func(u string) bool {
		return a.Owns(u) && pathUnder(u, "/item")
	})
}
