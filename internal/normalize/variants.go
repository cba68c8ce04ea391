package normalize

import "github.com/ternarybob/tacklebox/internal/models"

// Color is one color option as presented on a page
type Color struct {
	Name        string
	Description string
	Image       string
}

// Variant is one color × weight combination. Price and LengthMM override
// the product-level values when a page lists them per variant.
type Variant struct {
	Color    Color
	Weight   models.Weights
	Price    *int
	LengthMM *float64
}

// CrossProduct enumerates colors × weights in presentation order, colors
// outer. No weights yields one variant per color with an empty weight; no
// colors yields one variant per weight with an empty color.
func CrossProduct(colors []Color, weights []float64) []Variant {
	if len(colors) == 0 {
		colors = []Color{{}}
	}

	out := make([]Variant, 0, len(colors)*max(len(weights), 1))
	for _, c := range colors {
		if len(weights) == 0 {
			out = append(out, Variant{Color: c})
			continue
		}
		for _, w := range weights {
			out = append(out, Variant{Color: c, Weight: models.Single(w)})
		}
	}
	return out
}

// PerColor pairs each color with the full weight list, for pages where
// weights are options of one color record rather than separate products
func PerColor(colors []Color, weights models.Weights) []Variant {
	if len(colors) == 0 {
		colors = []Color{{}}
	}
	out := make([]Variant, 0, len(colors))
	for _, c := range colors {
		out = append(out, Variant{Color: c, Weight: weights})
	}
	return out
}

// UniqueColors drops repeated color names keeping the first occurrence
func UniqueColors(colors []Color) []Color {
	seen := make(map[string]bool, len(colors))
	out := colors[:0:0]
	for _, c := range colors {
		c.Name = CollapseSpace(c.Name)
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out
}
