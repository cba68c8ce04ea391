package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RawRecord is the canonical record for one color/weight variant of a product
// as extracted from a single source page.
type RawRecord struct {
	ID               string    `json:"id"`
	Name             string    `json:"name" validate:"required"`
	NameKana         string    `json:"name_kana,omitempty"`
	Slug             string    `json:"slug" validate:"required"`
	SourceID         string    `json:"source_id" validate:"required"`
	SourceSlug       string    `json:"source_slug" validate:"required"`
	Manufacturer     string    `json:"manufacturer"`
	Category         string    `json:"category"`
	TargetSpecies    []string  `json:"target_species"`
	Price            *int      `json:"price" validate:"omitempty,gte=1,lte=1000000"`
	LengthMM         *float64  `json:"length_mm" validate:"omitempty,gte=1,lte=10000"`
	WeightG          Weights   `json:"weight_g" validate:"omitempty,dive,gte=0.1,lte=2000"`
	ColorName        string    `json:"color_name"`
	ColorDescription string    `json:"color_description"`
	Images           []string  `json:"images" validate:"required,min=1,dive,url"`
	Description      string    `json:"description"`
	SourceURL        string    `json:"source_url" validate:"required,url"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DedupKey identifies "the same observation" across repeated scrapes
type DedupKey struct {
	SourceSlug string
	SourceURL  string
	ColorName  string
	WeightKey  string
}

// String joins the key parts with a separator that cannot appear in URLs
func (k DedupKey) String() string {
	return strings.Join([]string{k.SourceSlug, k.SourceURL, k.ColorName, k.WeightKey}, "\x1f")
}

// Key returns the record's dedup key
func (r *RawRecord) Key() DedupKey {
	return DedupKey{
		SourceSlug: r.SourceSlug,
		SourceURL:  r.SourceURL,
		ColorName:  r.ColorName,
		WeightKey:  r.WeightG.Key(),
	}
}

// RecordID derives the storage primary key from a dedup key
func RecordID(k DedupKey) string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:16])
}

// EnsureID sets ID from the dedup key and returns it
func (r *RawRecord) EnsureID() string {
	r.ID = RecordID(r.Key())
	return r.ID
}

// MainImage returns the first image or ""
func (r *RawRecord) MainImage() string {
	for _, img := range r.Images {
		if strings.TrimSpace(img) != "" {
			return img
		}
	}
	return ""
}

// IntPtr is a small helper for optional prices
func IntPtr(v int) *int {
	return &v
}

// FloatPtr is a small helper for optional lengths
func FloatPtr(v float64) *float64 {
	return &v
}
