package sources

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

const jackallCatalogPath = "/bass/products/lure/"

// Jackall lists one spec row per weight model (each with its own length and
// price) and a shared .color-chart; records are colors × spec rows.
type Jackall struct {
	base
}

func newJackall(src models.Source, deps Deps) interfaces.Adapter {
	return &Jackall{base: newBase(src, deps)}
}

type jackallRow struct {
	weights models.Weights
	length  *float64
	price   *int
}

func (a *Jackall) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	p := product{
		Name:        firstText(doc.Selection, "h1.product-name", ".product-header h1", "h1"),
		NameKana:    firstText(doc.Selection, ".product-name-kana"),
		Category:    firstText(doc.Selection, ".product-category"),
		SpeciesTags: splitLabels(firstText(doc.Selection, ".product-target")),
		Description: normalize.DescriptionFromSelection(doc.Find(".product-description").First(), page.URL),
		Images:      images(page, doc.Selection, ".main-image img", ".product-slider img"),
	}

	rows := a.specRows(doc.Find("table.spec").First())

	var colors []normalize.Color
	doc.Find(".color-chart li").Each(func(_ int, li *goquery.Selection) {
		colors = append(colors, normalize.Color{
			Name:        firstText(li, ".color-name"),
			Description: firstText(li, ".color-code", ".color-note"),
			Image:       page.Resolve(imageSrc(li.Find("img").First())),
		})
	})
	colors = normalize.UniqueColors(colors)
	if len(colors) == 0 {
		colors = []normalize.Color{{}}
	}

	for _, c := range colors {
		if len(rows) == 0 {
			p.Variants = append(p.Variants, normalize.Variant{Color: c})
			continue
		}
		for _, row := range rows {
			p.Variants = append(p.Variants, normalize.Variant{
				Color:    c,
				Weight:   row.weights,
				Price:    row.price,
				LengthMM: row.length,
			})
		}
	}

	return a.records(rawURL, p)
}

// specRows maps header cells to columns and reads one row per weight model
func (a *Jackall) specRows(table *goquery.Selection) []jackallRow {
	columns := map[string]int{}
	headers := table.Find("thead th")
	if headers.Length() == 0 {
		headers = table.Find("tr").First().Find("th")
	}
	headers.Each(func(i int, th *goquery.Selection) {
		label := strings.ToLower(normalize.FoldWidth(normalize.CollapseSpace(th.Text())))
		switch {
		case strings.Contains(label, "length"), strings.Contains(label, "全長"):
			columns["length"] = i
		case strings.Contains(label, "weight"), strings.Contains(label, "自重"), strings.Contains(label, "重さ"):
			columns["weight"] = i
		case strings.Contains(label, "price"), strings.Contains(label, "価格"):
			columns["price"] = i
		}
	})

	var rows []jackallRow
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		cell := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= cells.Length() {
				return ""
			}
			return cells.Eq(idx).Text()
		}
		row := jackallRow{
			weights: normalize.ParseWeights(cell("weight")),
			length:  normalize.Length(cell("length")),
			price:   normalize.Price(cell("price")),
		}
		if row.weights.IsZero() && row.length == nil && row.price == nil {
			return
		}
		rows = append(rows, row)
	})
	return rows
}

func (a *Jackall) ListProducts(ctx context.Context) ([]string, error) {
	page, doc, err := a.document(ctx, a.url(jackallCatalogPath))
	if err != nil {
		return nil, err
	}
	return links(page, doc.Selection, ".product-card a[href]", func(u string) bool {
		return a.Owns(u) && pathUnder(u, jackallCatalogPath)
	}), nil
}
