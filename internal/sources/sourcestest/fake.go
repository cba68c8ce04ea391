// Package sourcestest provides in-memory adapters and a registry for tests of
// the components that drive source adapters.
package sourcestest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
)

// ExtractFunc produces the result for one URL
type ExtractFunc func(ctx context.Context, rawURL string) ([]*models.RawRecord, error)

// Adapter is a scripted interfaces.Adapter
type Adapter struct {
	Src      models.Source
	Products []string // returned by ListProducts
	ListErr  error    // returned by ListProducts when set

	// Pages maps a URL to its records; URLs absent from Pages produce a 404
	// FetchError unless Errors or OnExtract handles them
	Pages     map[string][]*models.RawRecord
	Errors    map[string]error
	OnExtract ExtractFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewAdapter creates an adapter for id serving base URL https://<id>.example
func NewAdapter(id string) *Adapter {
	return &Adapter{
		Src: models.Source{
			ID:      id,
			Slug:    id,
			Name:    strings.ToUpper(id),
			BaseURL: "https://" + id + ".example",
		},
		Pages:  make(map[string][]*models.RawRecord),
		Errors: make(map[string]error),
	}
}

func (a *Adapter) Source() models.Source {
	return a.Src
}

func (a *Adapter) Owns(rawURL string) bool {
	return strings.HasPrefix(rawURL, a.Src.BaseURL+"/") || rawURL == a.Src.BaseURL
}

func (a *Adapter) Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
	a.mu.Lock()
	if a.calls == nil {
		a.calls = make(map[string]int)
	}
	a.calls[rawURL]++
	a.mu.Unlock()

	if a.OnExtract != nil {
		return a.OnExtract(ctx, rawURL)
	}
	if err, ok := a.Errors[rawURL]; ok {
		return nil, err
	}
	records, ok := a.Pages[rawURL]
	if !ok {
		return nil, &models.FetchError{URL: rawURL, StatusCode: 404}
	}

	// Callers own the returned records
	out := make([]*models.RawRecord, len(records))
	for i, r := range records {
		c := *r
		out[i] = &c
	}
	return out, nil
}

func (a *Adapter) ListProducts(ctx context.Context) ([]string, error) {
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	return append([]string(nil), a.Products...), nil
}

// Calls returns how often Extract was called for rawURL
func (a *Adapter) Calls(rawURL string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[rawURL]
}

// Record builds a valid record for a product page of this adapter
func (a *Adapter) Record(path, name, color string, weights ...float64) *models.RawRecord {
	url := a.Src.BaseURL + path
	return &models.RawRecord{
		Name:         name,
		Slug:         strings.Trim(strings.ReplaceAll(path, "/", "-"), "-"),
		SourceID:     a.Src.ID,
		SourceSlug:   a.Src.Slug,
		Manufacturer: a.Src.Name,
		Category:     "minnow",
		WeightG:      models.Weights(weights),
		ColorName:    color,
		Images:       []string{url + "/main.jpg"},
		SourceURL:    url,
	}
}

// Registry is an interfaces.AdapterRegistry over a fixed set of adapters
type Registry struct {
	adapters map[string]interfaces.Adapter
}

// NewRegistry indexes adapters by their source id
func NewRegistry(adapters ...interfaces.Adapter) *Registry {
	r := &Registry{adapters: make(map[string]interfaces.Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Source().ID] = a
	}
	return r
}

func (r *Registry) Lookup(id string) (interfaces.Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

func (r *Registry) ForURL(rawURL string) (interfaces.Adapter, bool) {
	for _, id := range r.IDs() {
		if r.adapters[id].Owns(rawURL) {
			return r.adapters[id], true
		}
	}
	return nil, false
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
