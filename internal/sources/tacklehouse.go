package sources

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

// TackleHouse serves Shift_JIS table layouts with label cells followed by
// value cells. Prices are quoted before tax (本体価格).
type TackleHouse struct {
	base
}

func newTackleHouse(src models.Source, deps Deps) interfaces.Adapter {
	return &TackleHouse{base: newBase(src, deps)}
}

func (a *TackleHouse) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	cells := labelCells(doc.Selection)

	name := firstText(doc.Selection, "td.pname")
	if name == "" {
		name = cells.get("名称", "品名")
	}
	if name == "" {
		title := normalize.CollapseSpace(doc.Find("title").First().Text())
		name, _, _ = strings.Cut(title, "|")
	}

	p := product{
		Name:        name,
		NameKana:    firstText(doc.Selection, "td.pkana"),
		Category:    cells.get("タイプ", "種類"),
		SpeciesTags: splitLabels(cells.get("対象魚")),
		Description: normalize.DescriptionFromSelection(doc.Find("td.comment").First(), page.URL),
		LengthMM:    normalize.Length(cells.get("全長", "サイズ")),
		Images:      images(page, doc.Selection, "td.pimage img", "img.main"),
	}
	if price := cells.get("本体価格"); price != "" {
		if v, err := normalize.ParsePrice(price); err == nil {
			yen := normalize.TaxInclusive(v, true)
			p.Price = &yen
		}
	} else {
		p.Price = normalize.Price(cells.get("価格"))
	}

	var colors []normalize.Color
	doc.Find("td.color").Each(func(_ int, td *goquery.Selection) {
		colors = append(colors, normalize.Color{
			Name:  normalize.CollapseSpace(td.Text()),
			Image: page.Resolve(imageSrc(td.Find("img").First())),
		})
	})
	p.Variants = normalize.CrossProduct(normalize.UniqueColors(colors), normalize.ParseWeights(cells.get("重量", "自重")))

	return a.records(rawURL, p)
}

// labelCells scans td pairs where a short label cell is followed by its value
func labelCells(sel *goquery.Selection) spec {
	var out spec
	sel.Find("td.label, th.label").Each(func(_ int, td *goquery.Selection) {
		label := normalize.CollapseSpace(td.Text())
		if label == "" {
			return
		}
		out = append(out, field{Label: label, Value: normalize.CollapseSpace(td.Next().Text())})
	})
	if len(out) == 0 {
		out = specTable(sel)
	}
	return out
}

func (a *TackleHouse) ListProducts(ctx context.Context) ([]string, error) {
	page, doc, err := a.document(ctx, a.url("/product/index.html"))
	if err != nil {
		return nil, err
	}
	return links(page, doc.Selection, "a[href]", func(u string) bool {
		return a.Owns(u) && strings.HasSuffix(u, ".html") && !strings.HasSuffix(u, "/index.html") && strings.Contains(u, "/product/")
	}), nil
}
