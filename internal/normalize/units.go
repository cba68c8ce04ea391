package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/ternarybob/tacklebox/internal/models"
)

// Plausible ranges; values outside them are treated as missing
const (
	MinLengthMM = 1.0
	MaxLengthMM = 10000.0
	MinWeightG  = 0.1
	MaxWeightG  = 2000.0
	MinPrice    = 1
	MaxPrice    = 1000000

	gramsPerOunce = 28.349523125
	mmPerInch     = 25.4
	mmPerCM       = 10.0

	// TaxRate is the consumption tax applied to tax-exclusive prices
	TaxRate = 10
)

var (
	lengthPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mm|cm|inch|in|"|インチ|ミリ|センチ)?`)
	weightPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(oz|g|グラム)?`)
	fractionPattern = regexp.MustCompile(`(?:(\d+)[\s-]+)?(\d+)\s*/\s*(\d+)\s*oz`)
	pricePattern    = regexp.MustCompile(`\d+`)
	taxExclusive    = []string{"税抜", "税別", "本体価格", "+税", "＋税", "tax excluded", "excl. tax"}
)

// FoldWidth folds full-width digits, letters and punctuation to ASCII and
// half-width katakana to full-width, leaving other Japanese text alone
func FoldWidth(s string) string {
	return width.Fold.String(s)
}

func prepare(s string) string {
	s = FoldWidth(s)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "”", `"`)
}

func outOfRange(field, raw string, v, min, max float64) error {
	if v < min || v > max {
		return &models.ValidationError{
			Field:  field,
			Value:  raw,
			Reason: fmt.Sprintf("%g outside [%g, %g]", v, min, max),
		}
	}
	return nil
}

func noValue(field, raw string) error {
	return &models.ValidationError{Field: field, Value: raw, Reason: "no number found"}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// followedByLetter reports whether the text after end starts (ignoring
// spaces) with a letter, i.e. a unit this pattern did not capture
func followedByLetter(text string, end int) bool {
	rest := strings.TrimLeft(text[end:], " ")
	for _, r := range rest {
		return unicode.IsLetter(r)
	}
	return false
}

// ParseLengthMM reads a length in s and returns millimetres. A number with an
// explicit length unit wins over a bare number; bare numbers are millimetres.
func ParseLengthMM(s string) (float64, error) {
	text := strings.ReplaceAll(prepare(s), ",", "")

	var chosen []string
	for _, idx := range lengthPattern.FindAllStringSubmatchIndex(text, -1) {
		m := submatches(text, idx)
		if m[2] != "" {
			chosen = m
			break
		}
		if chosen == nil && !followedByLetter(text, idx[1]) {
			chosen = m
		}
	}
	if chosen == nil {
		return 0, noValue("length_mm", s)
	}

	v, err := strconv.ParseFloat(chosen[1], 64)
	if err != nil {
		return 0, noValue("length_mm", s)
	}

	switch chosen[2] {
	case "cm", "センチ":
		v *= mmPerCM
	case "inch", "in", `"`, "インチ":
		v *= mmPerInch
	}
	v = round(v, 1)

	if err := outOfRange("length_mm", s, v, MinLengthMM, MaxLengthMM); err != nil {
		return 0, err
	}
	return v, nil
}

func submatches(text string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = text[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}

// ParseWeights reads every weight listed in s ("7g/10g/14g", "5.5・7g",
// "3/8oz") and returns grams in presentation order without duplicates.
// Out-of-range entries are dropped.
func ParseWeights(s string) models.Weights {
	text := prepare(s)

	// Resolve fractional ounces first so their slash is not read as a separator
	text = fractionPattern.ReplaceAllStringFunc(text, func(frac string) string {
		m := fractionPattern.FindStringSubmatch(frac)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den == 0 {
			return " "
		}
		v := num / den
		if m[1] != "" {
			whole, _ := strconv.ParseFloat(m[1], 64)
			v += whole
		}
		return " " + strconv.FormatFloat(round(v*gramsPerOunce, 1), 'f', -1, 64) + "g "
	})

	// A bare number takes the unit used elsewhere in the string
	defaultOunce := strings.Contains(text, "oz") && !strings.Contains(text, "g")

	var out models.Weights
	seen := make(map[float64]bool)
	for _, idx := range weightPattern.FindAllStringSubmatchIndex(text, -1) {
		m := submatches(text, idx)
		if m[2] == "" && followedByLetter(text, idx[1]) {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if m[2] == "oz" || (m[2] == "" && defaultOunce) {
			v = round(v*gramsPerOunce, 1)
		}
		if outOfRange("weight_g", s, v, MinWeightG, MaxWeightG) != nil {
			continue
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ParseWeightG returns the first weight in s in grams
func ParseWeightG(s string) (float64, error) {
	text := prepare(s)
	if !weightPattern.MatchString(text) {
		return 0, noValue("weight_g", s)
	}
	w := ParseWeights(s)
	if len(w) == 0 {
		return 0, &models.ValidationError{
			Field:  "weight_g",
			Value:  s,
			Reason: fmt.Sprintf("outside [%g, %g]", MinWeightG, MaxWeightG),
		}
	}
	return w[0], nil
}

// ParsePrice reads a yen amount ("¥1,980", "1,800円(税込)")
func ParsePrice(s string) (int, error) {
	text := strings.ReplaceAll(prepare(s), ",", "")
	m := pricePattern.FindString(text)
	if m == "" {
		return 0, noValue("price", s)
	}

	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, noValue("price", s)
	}

	if err := outOfRange("price", s, float64(v), MinPrice, MaxPrice); err != nil {
		return 0, err
	}
	return v, nil
}

// IsTaxExclusive reports whether a price label states a tax-exclusive amount
func IsTaxExclusive(s string) bool {
	text := prepare(s)
	for _, marker := range taxExclusive {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// TaxInclusive adds consumption tax to an exclusive price, rounding down
func TaxInclusive(price int, exclusive bool) int {
	if !exclusive {
		return price
	}
	return price * (100 + TaxRate) / 100
}

// Price parses a price label and returns the tax-inclusive amount, or nil
// when the label holds no usable price
func Price(s string) *int {
	v, err := ParsePrice(s)
	if err != nil {
		return nil
	}
	v = TaxInclusive(v, IsTaxExclusive(s))
	if v > MaxPrice {
		return nil
	}
	return &v
}

// Length returns the parsed length or nil
func Length(s string) *float64 {
	v, err := ParseLengthMM(s)
	if err != nil {
		return nil
	}
	return &v
}
