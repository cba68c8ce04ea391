package models

// Source describes one manufacturer website handled by one adapter
type Source struct {
	ID      string `json:"id" yaml:"id"`             // Registry key, e.g. "megabass"
	Slug    string `json:"slug" yaml:"slug"`         // Manufacturer slug written to records
	Name    string `json:"name" yaml:"name"`         // Display name, e.g. "Megabass"
	BaseURL string `json:"base_url" yaml:"base_url"` // Scheme and host the adapter owns
}
