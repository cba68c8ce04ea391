package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
	"github.com/ternarybob/tacklebox/internal/pager"
)

const duoListPageSize = 24

// DUO prints the whole spec on one line ("Length: 80mm / Weight: 7.3g, 9g /
// Price: ¥1,800"). A weight list there is a set of options each color is
// sold in, so records carry the whole list rather than one per weight.
type DUO struct {
	base
}

func newDUO(src models.Source, deps Deps) interfaces.Adapter {
	return &DUO{base: newBase(src, deps)}
}

func (a *DUO) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	line := duoSpecLine(firstText(doc.Selection, ".product_spec", ".spec"))

	p := product{
		Name:        firstText(doc.Selection, "h2.product_name", "h1"),
		NameKana:    firstText(doc.Selection, ".product_name_en"),
		Category:    line.get("Type", "タイプ"),
		SpeciesTags: splitLabels(line.get("Target", "対象魚")),
		Description: normalize.DescriptionFromSelection(doc.Find(".product_text").First(), page.URL),
		Price:       normalize.Price(line.get("Price", "価格")),
		LengthMM:    normalize.Length(line.get("Length", "全長")),
		Images:      images(page, doc.Selection, ".product_main img", ".product_image img"),
	}

	var colors []normalize.Color
	doc.Find(".color_list li").Each(func(_ int, li *goquery.Selection) {
		colors = append(colors, normalize.Color{
			Name:        firstText(li, ".color_name"),
			Description: firstText(li, ".color_code"),
			Image:       page.Resolve(imageSrc(li.Find("img").First())),
		})
	})
	p.Variants = normalize.PerColor(normalize.UniqueColors(colors), normalize.ParseWeights(line.get("Weight", "自重")))

	return a.records(rawURL, p)
}

// duoSpecLine splits "Label: value / Label: value" into fields. A segment
// without a label continues the previous value.
func duoSpecLine(text string) spec {
	var out spec
	for _, part := range strings.Split(normalize.FoldWidth(text), " / ") {
		label, value, ok := strings.Cut(part, ":")
		if !ok {
			if len(out) > 0 {
				out[len(out)-1].Value += " / " + strings.TrimSpace(part)
			}
			continue
		}
		out = append(out, field{Label: strings.TrimSpace(label), Value: strings.TrimSpace(value)})
	}
	return out
}

func (a *DUO) ListProducts(ctx context.Context) ([]string, error) {
	fetchPage := func(ctx context.Context, after string, size int) (pager.Page[string], error) {
		pageNo := 1
		if after != "" {
			n, err := strconv.Atoi(after)
			if err != nil {
				return pager.Page[string]{}, fmt.Errorf("bad page cursor %q: %w", after, err)
			}
			pageNo = n
		}

		page, doc, err := a.document(ctx, fmt.Sprintf("%s?page=%d", a.url("/product/"), pageNo))
		if err != nil {
			return pager.Page[string]{}, err
		}

		urls := links(page, doc.Selection, ".product_list a.product_link[href]", a.Owns)
		result := pager.Page[string]{Items: urls}
		if len(urls) > 0 && doc.Find(".pagination .next").Length() > 0 {
			result.Next = strconv.Itoa(pageNo + 1)
		}
		return result, nil
	}

	return pager.All(ctx, duoListPageSize, 0, fetchPage)
}
