package sources

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

// firstText tries selectors in priority order and returns the first non-empty text
func firstText(sel *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := normalize.CollapseSpace(sel.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value across selectors
func firstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, selector := range selectors {
		if v, ok := sel.Find(selector).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// imageSrc reads an <img> source, preferring lazy-load attributes
func imageSrc(img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "data-original", "src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return strings.TrimSpace(v)
		}
	}
	if srcset, ok := img.Attr("srcset"); ok {
		if first := strings.Fields(strings.Split(srcset, ",")[0]); len(first) > 0 {
			return first[0]
		}
	}
	return ""
}

// images resolves every image under the selectors, in document order
func images(page *models.Page, sel *goquery.Selection, selectors ...string) []string {
	var out []string
	for _, selector := range selectors {
		sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
			img := s
			if !s.Is("img") {
				img = s.Find("img").First()
			}
			if abs := page.Resolve(imageSrc(img)); abs != "" {
				out = append(out, abs)
			}
		})
	}
	return uniqueStrings(out)
}

// field is one label/value pair from a spec table or definition list
type field struct {
	Label string
	Value string
}

// spec keeps fields in page order
type spec []field

// get returns the first value whose label contains one of labels (case and
// width insensitive), checking labels in priority order
func (s spec) get(labels ...string) string {
	for _, label := range labels {
		want := strings.ToLower(normalize.FoldWidth(label))
		for _, f := range s {
			if strings.Contains(strings.ToLower(normalize.FoldWidth(f.Label)), want) {
				return f.Value
			}
		}
	}
	return ""
}

// specTable reads th/td (or first td / second td) pairs from table rows
func specTable(sel *goquery.Selection) spec {
	var out spec
	sel.Find("tr").Each(func(_ int, row *goquery.Selection) {
		label := row.Find("th").First()
		value := row.Find("td").First()
		if label.Length() == 0 {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			label, value = cells.Eq(0), cells.Eq(1)
		}
		if key := normalize.CollapseSpace(label.Text()); key != "" {
			out = append(out, field{Label: key, Value: normalize.CollapseSpace(value.Text())})
		}
	})
	return out
}

// definitionList reads dt/dd pairs
func definitionList(sel *goquery.Selection) spec {
	var out spec
	sel.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		if key := normalize.CollapseSpace(dt.Text()); key != "" {
			out = append(out, field{Label: key, Value: normalize.CollapseSpace(dt.NextFiltered("dd").Text())})
		}
	})
	return out
}

// links resolves every anchor under sel accepted by keep, without fragments
// and duplicates, in document order
func links(page *models.Page, sel *goquery.Selection, selector string, keep func(string) bool) []string {
	var out []string
	seen := make(map[string]bool)
	sel.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "#") {
			return
		}
		abs := page.Resolve(href)
		if abs == "" {
			return
		}
		if u, err := url.Parse(abs); err == nil {
			u.Fragment = ""
			abs = u.String()
		}
		if seen[abs] || (keep != nil && !keep(abs)) {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	})
	return out
}

// jsonLDProduct returns the first schema.org Product object in the page's
// JSON-LD blocks, looking inside arrays and @graph
func jsonLDProduct(doc *goquery.Document) (gjson.Result, bool) {
	var found gjson.Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if !gjson.Valid(raw) {
			return true
		}
		var candidates []gjson.Result
		root := gjson.Parse(raw)
		switch {
		case root.IsArray():
			candidates = root.Array()
		case root.Get("@graph").Exists():
			candidates = root.Get("@graph").Array()
		default:
			candidates = []gjson.Result{root}
		}
		for _, c := range candidates {
			if isType(c.Get("@type"), "Product") {
				found = c
				return false
			}
		}
		return true
	})
	return found, found.Exists()
}

func isType(t gjson.Result, want string) bool {
	if t.IsArray() {
		for _, v := range t.Array() {
			if v.String() == want {
				return true
			}
		}
		return false
	}
	return t.String() == want
}

// stringList reads a JSON value that may be a string or an array of strings
func stringList(v gjson.Result) []string {
	if !v.Exists() {
		return nil
	}
	if v.IsArray() {
		var out []string
		for _, item := range v.Array() {
			if s := item.Get("url"); s.Exists() {
				out = append(out, s.String())
			} else if item.String() != "" {
				out = append(out, item.String())
			}
		}
		return out
	}
	if s := v.Get("url"); s.Exists() {
		return []string{s.String()}
	}
	return []string{v.String()}
}

// splitLabels splits a tag line such as "シーバス・ヒラメ / Trout"
func splitLabels(s string) []string {
	s = normalize.FoldWidth(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case '・', '/', ',', '、', '|':
			return true
		}
		return false
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// pathUnder reports whether rawURL's path sits strictly below prefix
func pathUnder(rawURL, prefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimSuffix(u.Path, "/")
	prefix = strings.TrimSuffix(prefix, "/")
	return strings.HasPrefix(p, prefix+"/") && len(p) > len(prefix)+1
}
