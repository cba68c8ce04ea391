package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Weights holds the weight options of a record in grams.
// Empty means unknown, one value is a plain weight, more than one is a list of options.
type Weights []float64

// Single returns a Weights holding one value
func Single(g float64) Weights {
	return Weights{g}
}

// IsZero reports whether no weight is known
func (w Weights) IsZero() bool {
	return len(w) == 0
}

// Key returns the canonical string form used in the dedup key ("", "7.5", "7/10/14")
func (w Weights) Key() string {
	if len(w) == 0 {
		return ""
	}
	parts := make([]string, len(w))
	for i, v := range w {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, "/")
}

// Min returns the smallest weight; ok is false when empty
func (w Weights) Min() (float64, bool) {
	if len(w) == 0 {
		return 0, false
	}
	m := w[0]
	for _, v := range w[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

// Max returns the largest weight; ok is false when empty
func (w Weights) Max() (float64, bool) {
	if len(w) == 0 {
		return 0, false
	}
	m := w[0]
	for _, v := range w[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// ParseWeightsKey is the inverse of Key
func ParseWeightsKey(key string) (Weights, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	parts := strings.Split(key, "/")
	w := make(Weights, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight key %q: %w", key, err)
		}
		w = append(w, v)
	}
	return w, nil
}

// MarshalJSON encodes null, a number, or an array
func (w Weights) MarshalJSON() ([]byte, error) {
	switch len(w) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(w[0])
	default:
		return json.Marshal([]float64(w))
	}
}

// UnmarshalJSON accepts null, a number, or an array
func (w *Weights) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*w = nil
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var list []float64
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*w = list
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*w = Weights{v}
	return nil
}
