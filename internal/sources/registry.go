package sources

import (
	"sort"
	"strings"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
)

type constructor func(src models.Source, deps Deps) interfaces.Adapter

type definition struct {
	source models.Source
	build  constructor
}

var definitions = map[string]definition{
	"megabass": {
		source: models.Source{ID: "megabass", Slug: "megabass", Name: "Megabass", BaseURL: "https://www.megabass.co.jp"},
		build:  newMegabass,
	},
	"jackall": {
		source: models.Source{ID: "jackall", Slug: "jackall", Name: "JACKALL", BaseURL: "https://www.jackall.co.jp"},
		build:  newJackall,
	},
	"osp": {
		source: models.Source{ID: "osp", Slug: "osp", Name: "O.S.P", BaseURL: "https://www.o-s-p.net"},
		build:  newOSP,
	},
	"evergreen": {
		source: models.Source{ID: "evergreen", Slug: "evergreen", Name: "EVERGREEN INTERNATIONAL", BaseURL: "https://shop.evergreen-fishing.com"},
		build:  newEvergreen,
	},
	"deps": {
		source: models.Source{ID: "deps", Slug: "deps", Name: "deps", BaseURL: "https://www.depsweb.co.jp"},
		build:  newDepsWeb,
	},
	"imakatsu": {
		source: models.Source{ID: "imakatsu", Slug: "imakatsu", Name: "IMAKATSU", BaseURL: "https://www.imakatsu.co.jp"},
		build:  newImakatsu,
	},
	"duo": {
		source: models.Source{ID: "duo", Slug: "duo", Name: "DUO", BaseURL: "https://www.duo-inc.co.jp"},
		build:  newDUO,
	},
	"tacklehouse": {
		source: models.Source{ID: "tacklehouse", Slug: "tacklehouse", Name: "TACKLE HOUSE", BaseURL: "https://www.tacklehouse.co.jp"},
		build:  newTackleHouse,
	},
	"daiwa": {
		source: models.Source{ID: "daiwa", Slug: "daiwa", Name: "DAIWA", BaseURL: "https://www.daiwa.com"},
		build:  newDaiwa,
	},
	"zipbaits": {
		source: models.Source{ID: "zipbaits", Slug: "zipbaits", Name: "ZipBaits", BaseURL: "https://www.zipbaits.com"},
		build:  newZipBaits,
	},
}

// Registry holds one adapter per enabled source
type Registry struct {
	adapters map[string]interfaces.Adapter
	ids      []string
}

// NewRegistry builds every known adapter, applying per-source config
// overrides. Disabled sources are left out.
func NewRegistry(deps Deps, overrides map[string]common.SourceConfig) *Registry {
	r := &Registry{adapters: make(map[string]interfaces.Adapter, len(definitions))}
	for id, def := range definitions {
		src := def.source
		if o, ok := overrides[id]; ok {
			if o.Disabled {
				continue
			}
			if strings.TrimSpace(o.BaseURL) != "" {
				src.BaseURL = strings.TrimSpace(o.BaseURL)
			}
		}
		r.adapters[id] = def.build(src, deps)
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r
}

// KnownIDs lists every compiled-in source id, enabled or not
func KnownIDs() []string {
	ids := make([]string, 0, len(definitions))
	for id := range definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Lookup(id string) (interfaces.Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// ForURL returns the adapter that owns rawURL
func (r *Registry) ForURL(rawURL string) (interfaces.Adapter, bool) {
	for _, id := range r.ids {
		if a := r.adapters[id]; a.Owns(rawURL) {
			return a, true
		}
	}
	return nil, false
}

// Sources returns the enabled sources in id order
func (r *Registry) Sources() []models.Source {
	out := make([]models.Source, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.adapters[id].Source())
	}
	return out
}
