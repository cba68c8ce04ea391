package normalize

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Description converts a product description fragment to markdown.
// baseURL resolves relative links; conversion failures fall back to plain text.
func Description(html, baseURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(html)
	if err != nil || strings.TrimSpace(converted) == "" {
		return plainText(html)
	}

	return strings.TrimSpace(blankLines.ReplaceAllString(converted, "\n\n"))
}

// DescriptionFromSelection converts the outer HTML of a goquery selection
func DescriptionFromSelection(sel *goquery.Selection, baseURL string) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	html, err := sel.Html()
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	return Description(html, baseURL)
}

func plainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return CollapseSpace(doc.Text())
}

// CollapseSpace trims s and folds runs of whitespace to a single space
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
