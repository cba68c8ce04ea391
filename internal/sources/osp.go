package sources

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/fetch"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

// OSP keeps specs in a dl.spec definition list and colors as
// [data-color-name] items inside .colorList
type OSP struct {
	base
}

func newOSP(src models.Source, deps Deps) interfaces.Adapter {
	return &OSP{base: newBase(src, deps)}
}

func (a *OSP) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	dl := definitionList(doc.Find("dl.spec").First())

	p := product{
		Name:        firstText(doc.Selection, "h1.entry-title", "h1"),
		NameKana:    firstText(doc.Selection, ".entry-title-kana", ".name-kana"),
		Category:    dl.get("Type", "タイプ"),
		SpeciesTags: splitLabels(dl.get("Target", "対象魚")),
		Description: normalize.DescriptionFromSelection(doc.Find(".entry-content .description").First(), page.URL),
		Price:       normalize.Price(dl.get("Price", "価格")),
		LengthMM:    normalize.Length(dl.get("Length", "全長")),
		Images:      images(page, doc.Selection, ".product-image img", ".entry-content .main img"),
	}

	var colors []normalize.Color
	doc.Find(".colorList [data-color-name]").Each(func(_ int, item *goquery.Selection) {
		name, _ := item.Attr("data-color-name")
		code, _ := item.Attr("data-color-code")
		img := item
		if !item.Is("img") {
			img = item.Find("img").First()
		}
		colors = append(colors, normalize.Color{
			Name:        name,
			Description: code,
			Image:       page.Resolve(imageSrc(img)),
		})
	})

	weights := normalize.ParseWeights(dl.get("Weight", "重量", "自重"))
	p.Variants = normalize.CrossProduct(normalize.UniqueColors(colors), weights)

	return a.records(rawURL, p)
}

func (a *OSP) ListProducts(ctx context.Context) ([]string, error) {
	return fetch.Sitemap(ctx, a.deps.Fetcher, a.logger, a.url("/sitemap.xml"), func(u string) bool {
		return a.Owns(u) && pathUnder(u, "/products")
	})
}
