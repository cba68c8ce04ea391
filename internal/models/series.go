package models

import "time"

// IntRange is an inclusive min/max pair of integers
type IntRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// FloatRange is an inclusive min/max pair of floats
type FloatRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// ColorVariant is one (color, weight) entry of a series
type ColorVariant struct {
	ColorName        string   `json:"color_name" yaml:"color_name"`
	ColorDescription string   `json:"color_description,omitempty" yaml:"color_description,omitempty"`
	WeightG          Weights  `json:"weight_g" yaml:"weight_g,flow"`
	Price            *int     `json:"price" yaml:"price"`
	LengthMM         *float64 `json:"length_mm" yaml:"length_mm"`
	Image            string   `json:"image,omitempty" yaml:"image,omitempty"`
	SourceURL        string   `json:"source_url" yaml:"source_url"`
}

// SeriesAggregate groups every RawRecord sharing a product name.
// It is computed on read and never stored.
type SeriesAggregate struct {
	Slug          string         `json:"slug" yaml:"slug"`
	Name          string         `json:"name" yaml:"name"`
	NameKana      string         `json:"name_kana,omitempty" yaml:"name_kana,omitempty"`
	Manufacturer  string         `json:"manufacturer" yaml:"manufacturer"`
	SourceSlug    string         `json:"source_slug" yaml:"source_slug"`
	Category      string         `json:"category" yaml:"category"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Image         string         `json:"image" yaml:"image"`
	ColorVariants []ColorVariant `json:"color_variants" yaml:"color_variants"`
	PriceRange    IntRange       `json:"price_range" yaml:"price_range"`
	WeightRange   *FloatRange    `json:"weight_range" yaml:"weight_range"`
	LengthRange   *FloatRange    `json:"length_range" yaml:"length_range"`
	TargetSpecies []string       `json:"target_species" yaml:"target_species"`
	CreatedAt     time.Time      `json:"created_at" yaml:"created_at"`
}

// ColorCount returns the number of distinct (color, weight) variants
func (s *SeriesAggregate) ColorCount() int {
	return len(s.ColorVariants)
}
