// Package numeric turns spreadsheet and CSV cell values into floats.
//
// The sources mix Italian and English conventions, so a comma is always read
// as the decimal separator and anything that is not part of a number is
// dropped. Thousands separators are not supported.
package numeric

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Coerce converts v into a finite float64. The second return value is false
// when v is nil, empty or cannot be parsed; callers must treat that as an
// absent field and never as zero.
func Coerce(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case string:
		return CoerceString(n)
	case []byte:
		return CoerceString(string(n))
	default:
		return 0, false
	}
}

// CoerceString is Coerce for text cells.
func CoerceString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if rest, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(rest, ",", ".")), 64)
		if err != nil {
			return 0, false
		}
		return finite(f / 100)
	}

	s = strings.ReplaceAll(s, ",", ".")
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == 'e', r == 'E':
			return r
		}
		return -1
	}, s)
	switch cleaned {
	case "", "-", ".", "+":
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
