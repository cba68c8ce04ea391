package normalize

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultTables []byte

// DefaultCategory is used when nothing on the page identifies the lure type
const DefaultCategory = "other"

type rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type tables struct {
	DefaultCategory string `yaml:"default_category"`
	Categories      []rule `yaml:"categories"`
	Species         []rule `yaml:"species"`
}

// Classifier maps names and page labels onto categories and target species
type Classifier struct {
	defaultCategory string
	categories      []rule
	species         []rule
}

// LoadClassifier parses lookup tables in the categories.yaml format
func LoadClassifier(data []byte) (*Classifier, error) {
	var t tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse category tables: %w", err)
	}

	c := &Classifier{
		defaultCategory: t.DefaultCategory,
		categories:      lowerRules(t.Categories),
		species:         lowerRules(t.Species),
	}
	if c.defaultCategory == "" {
		c.defaultCategory = DefaultCategory
	}
	return c, nil
}

func lowerRules(rules []rule) []rule {
	out := make([]rule, 0, len(rules))
	for _, r := range rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(FoldWidth(strings.TrimSpace(k))); k != "" {
				kw = append(kw, k)
			}
		}
		out = append(out, rule{Name: r.Name, Keywords: kw})
	}
	return out
}

var (
	defaultClassifier     *Classifier
	defaultClassifierOnce sync.Once
)

// DefaultClassifier returns the classifier built from the embedded tables
func DefaultClassifier() *Classifier {
	defaultClassifierOnce.Do(func() {
		c, err := LoadClassifier(defaultTables)
		if err != nil {
			panic(fmt.Sprintf("embedded categories.yaml: %v", err))
		}
		defaultClassifier = c
	})
	return defaultClassifier
}

func match(rules []rule, text string) (string, bool) {
	text = strings.ToLower(FoldWidth(text))
	for _, r := range rules {
		for _, k := range r.Keywords {
			if strings.Contains(text, k) {
				return r.Name, true
			}
		}
	}
	return "", false
}

// Category prefers the page's structured value, mapped through the table when
// it matches a known keyword, then falls back to matching the product name
func (c *Classifier) Category(structured, name string) string {
	if structured = CollapseSpace(structured); structured != "" {
		if cat, ok := match(c.categories, structured); ok {
			return cat
		}
		if s := slugify(structured); s != "" {
			return s
		}
	}
	if cat, ok := match(c.categories, name); ok {
		return cat
	}
	return c.defaultCategory
}

// Species prefers explicit page tags; otherwise every species whose keywords
// appear in the given texts is returned in table order
func (c *Classifier) Species(tags []string, texts ...string) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, tag := range tags {
		if sp, ok := match(c.species, tag); ok {
			add(sp)
		} else {
			add(slugify(tag))
		}
	}
	if len(out) > 0 {
		return out
	}

	joined := strings.ToLower(FoldWidth(strings.Join(texts, " ")))
	for _, r := range c.species {
		for _, k := range r.Keywords {
			if strings.Contains(joined, k) {
				add(r.Name)
				joined = strings.ReplaceAll(joined, k, " ")
			}
		}
	}
	return out
}

// MatchSpecies maps a single label onto a known species
func (c *Classifier) MatchSpecies(label string) (string, bool) {
	return match(c.species, label)
}

// Category classifies with the embedded tables
func Category(structured, name string) string {
	return DefaultClassifier().Category(structured, name)
}

// Species classifies with the embedded tables
func Species(tags []string, texts ...string) []string {
	return DefaultClassifier().Species(tags, texts...)
}
