package sources

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/tacklebox/internal/fetch"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

// Imakatsu is a WooCommerce shop: each purchasable color/weight is an entry of
// the variations form's data-product_variations JSON. Attribute values are
// slugs whose display names come from the matching <select> options.
type Imakatsu struct {
	base
}

func newImakatsu(src models.Source, deps Deps) interfaces.Adapter {
	return &Imakatsu{base: newBase(src, deps)}
}

func (a *Imakatsu) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	if err := a.checkOwned(rawURL); err != nil {
		return nil, err
	}

	page, doc, err := a.document(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	attrs := specTable(doc.Find("table.woocommerce-product-attributes").First())

	p := product{
		Name:        firstText(doc.Selection, "h1.product_title", "h1"),
		NameKana:    firstText(doc.Selection, ".product_title_kana"),
		Category:    firstText(doc.Selection, ".product_meta .posted_in a"),
		SpeciesTags: splitLabels(attrs.get("対象魚", "Target")),
		Description: normalize.DescriptionFromSelection(doc.Find(".woocommerce-product-details__short-description").First(), page.URL),
		LengthMM:    normalize.Length(attrs.get("全長", "Length")),
		Price:       normalize.Price(firstText(doc.Selection, "p.price .woocommerce-Price-amount", "p.price")),
	}
	doc.Find(".woocommerce-product-gallery__image").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Find("a").First().Attr("href")
		if href == "" {
			href = imageSrc(s.Find("img").First())
		}
		if abs := page.Resolve(href); abs != "" {
			p.Images = append(p.Images, abs)
		}
	})
	productWeights := normalize.ParseWeights(attrs.get("自重", "重量", "Weight"))

	form := doc.Find("form.variations_form").First()
	raw, _ := form.Attr("data-product_variations")
	labels := a.optionLabels(form)

	if raw != "" && gjson.Valid(raw) {
		for _, v := range gjson.Parse(raw).Array() {
			variant := normalize.Variant{Weight: productWeights}
			v.Get("attributes").ForEach(func(key, value gjson.Result) bool {
				name := key.String()
				display := labels[name][value.String()]
				if display == "" {
					display = unslug(value.String())
				}
				lower := strings.ToLower(name)
				switch {
				case strings.Contains(lower, "color") || strings.Contains(lower, "%e3%82%ab%e3%83%a9%e3%83%bc"):
					variant.Color.Name = display
				case strings.Contains(lower, "weight"):
					if w := normalize.ParseWeights(display); !w.IsZero() {
						variant.Weight = w
					}
				}
				return true
			})
			if src := v.Get("image.full_src").String(); src != "" {
				variant.Color.Image = page.Resolve(src)
			} else if src := v.Get("image.src").String(); src != "" {
				variant.Color.Image = page.Resolve(src)
			}
			if price := v.Get("display_price"); price.Exists() && price.Int() > 0 {
				yen := int(price.Int())
				variant.Price = &yen
			}
			variant.Color.Description = normalize.CollapseSpace(stripTags(v.Get("variation_description").String()))
			p.Variants = append(p.Variants, variant)
		}
	}
	if len(p.Variants) == 0 {
		p.Variants = []normalize.Variant{{Weight: productWeights}}
	}

	return a.records(rawURL, p)
}

// optionLabels maps attribute name -> option value -> display text
func (a *Imakatsu) optionLabels(form *goquery.Selection) map[string]map[string]string {
	out := make(map[string]map[string]string)
	form.Find("select[name^=attribute_]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		values := make(map[string]string)
		sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			if v, ok := opt.Attr("value"); ok && v != "" {
				values[v] = normalize.CollapseSpace(opt.Text())
			}
		})
		out[name] = values
	})
	return out
}

func unslug(v string) string {
	if decoded, err := url.QueryUnescape(v); err == nil {
		v = decoded
	}
	return strings.ReplaceAll(v, "-", " ")
}

func stripTags(html string) string {
	if !strings.Contains(html, "<") {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return doc.Text()
}

func (a *Imakatsu) ListProducts(ctx context.Context) ([]string, error) {
	return fetch.Sitemap(ctx, a.deps.Fetcher, a.logger, a.url("/product-sitemap.xml"), func(u string) bool {
		return a.Owns(u) && pathUnder(u, "/product")
	})
}
