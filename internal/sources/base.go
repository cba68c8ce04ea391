// Package sources holds one adapter per manufacturer site and the registry
// that resolves them by id or URL.
package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/normalize"
)

// Deps are the collaborators shared by every adapter
type Deps struct {
	Fetcher    interfaces.PageFetcher
	Renderer   interfaces.PageRenderer
	Classifier *normalize.Classifier
	Logger     arbor.ILogger
}

// base implements the parts of interfaces.Adapter every source shares
type base struct {
	source models.Source
	host   string
	deps   Deps
	logger arbor.ILogger
}

func newBase(src models.Source, deps Deps) base {
	src.BaseURL = strings.TrimRight(src.BaseURL, "/")
	if deps.Classifier == nil {
		deps.Classifier = normalize.DefaultClassifier()
	}
	if deps.Logger == nil {
		deps.Logger = arbor.NewLogger()
	}
	return base{
		source: src,
		host:   hostOf(src.BaseURL),
		deps:   deps,
		logger: deps.Logger,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func (b *base) Source() models.Source {
	return b.source
}

// Owns matches on host, ignoring a leading "www."
func (b *base) Owns(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return b.host != "" && strings.TrimPrefix(strings.ToLower(u.Host), "www.") == b.host
}

func (b *base) checkOwned(rawURL string) error {
	if !b.Owns(rawURL) {
		return &models.ParseError{URL: rawURL, Field: "url", Reason: fmt.Sprintf("not a %s URL", b.source.ID)}
	}
	return nil
}

// url joins a path onto the base URL
func (b *base) url(path string) string {
	return b.source.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// document fetches and parses an HTML page
func (b *base) document(ctx context.Context, rawURL string) (*models.Page, *goquery.Document, error) {
	page, err := b.deps.Fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(page.Reader())
	if err != nil {
		return nil, nil, &models.ParseError{URL: rawURL, Field: "html", Reason: err.Error()}
	}
	return page, doc, nil
}

// product is what an adapter located on a page before expansion into records
type product struct {
	Name        string
	NameKana    string
	Category    string // structured value from the page, if any
	SpeciesTags []string
	Description string
	Price       *int
	LengthMM    *float64
	Images      []string
	Variants    []normalize.Variant
}

// records expands a product into one record per variant. A missing name or a
// product without any image is a ParseError.
func (b *base) records(sourceURL string, p product) ([]*models.RawRecord, error) {
	name := normalize.CollapseSpace(p.Name)
	if name == "" {
		return nil, &models.ParseError{URL: sourceURL, Field: "name", Reason: "product name not found"}
	}

	images := uniqueStrings(p.Images)
	variants := p.Variants
	if len(variants) == 0 {
		variants = []normalize.Variant{{}}
	}

	hasImage := len(images) > 0
	for _, v := range variants {
		if v.Color.Image != "" {
			hasImage = true
		}
	}
	if !hasImage {
		return nil, &models.ParseError{URL: sourceURL, Field: "images", Reason: "no product image found"}
	}

	category := b.deps.Classifier.Category(p.Category, name)
	species := b.deps.Classifier.Species(p.SpeciesTags, name, p.Description)
	slug := normalize.Slug(sourceURL)

	out := make([]*models.RawRecord, 0, len(variants))
	for _, v := range variants {
		rec := &models.RawRecord{
			Name:             name,
			NameKana:         normalize.CollapseSpace(p.NameKana),
			Slug:             slug,
			SourceID:         b.source.ID,
			SourceSlug:       b.source.Slug,
			Manufacturer:     b.source.Name,
			Category:         category,
			TargetSpecies:    species,
			Price:            p.Price,
			LengthMM:         p.LengthMM,
			WeightG:          v.Weight,
			ColorName:        normalize.CollapseSpace(v.Color.Name),
			ColorDescription: normalize.CollapseSpace(v.Color.Description),
			Description:      p.Description,
			SourceURL:        sourceURL,
		}
		if v.Price != nil {
			rec.Price = v.Price
		}
		if v.LengthMM != nil {
			rec.LengthMM = v.LengthMM
		}
		if v.Color.Image != "" {
			rec.Images = uniqueStrings(append([]string{v.Color.Image}, images...))
		} else {
			rec.Images = images
		}
		rec.EnsureID()
		out = append(out, rec)
	}

	b.logger.Debug().
		Str("source", b.source.ID).
		Str("url", sourceURL).
		Str("name", name).
		Int("records", len(out)).
		Msg("Extracted product")

	return out, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
