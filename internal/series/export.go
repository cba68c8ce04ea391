package series

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/tacklebox/internal/models"
)

// Formats accepted by Write
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type exported struct {
	models.SeriesAggregate `yaml:",inline"`
	ColorCount             int `json:"color_count" yaml:"color_count"`
}

// Write encodes series as an array in the given format
func Write(w io.Writer, series []*models.SeriesAggregate, format string) error {
	out := make([]exported, len(series))
	for i, s := range series {
		out[i] = exported{SeriesAggregate: *s, ColorCount: s.ColorCount()}
	}

	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(out)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (expected json or yaml)", format)
	}
}
