// Package numeric normalizes the heterogeneous numeric representations that
// extraction providers emit: plain numbers, currency-prefixed strings,
// thousands separators, and nested {value: ...} wrappers.
package numeric

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// currencyStripper removes currency markers and grouping characters before
// parsing. "Rs" and the rupee sign appear in the same documents as "$"-style
// prefixes, so all of them are treated as noise.
var currencyStripper = strings.NewReplacer(
	"₹", "",
	"$", "",
	"€", "",
	"£", "",
	"Rs.", "",
	"Rs", "",
	"INR", "",
	",", "",
	" ", "",
	" ", "",
)

// Normalize converts v into a canonical float. The second return value is
// false when v carries no usable number; callers must treat that as
// "insufficient data", not as zero. Normalize never panics.
func Normalize(v any) (float64, bool) {
	return normalize(v, true)
}

func normalize(v any, allowRecurse bool) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		s := currencyStripper.Replace(strings.TrimSpace(t))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	case map[string]any:
		// Extraction wrappers nest the number one level down. Recurse once.
		if !allowRecurse {
			return 0, false
		}
		inner, ok := t["value"]
		if !ok {
			return 0, false
		}
		return normalize(inner, false)
	default:
		return 0, false
	}
}

// finite rejects NaN and infinities. strconv.ParseFloat accepts "NaN" and
// "Inf" spellings, and downstream decimal arithmetic cannot represent either.
func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizePtr is Normalize for optional fields: it returns nil instead of a
// (0, false) pair so absence survives serialization.
func NormalizePtr(v any) *float64 {
	f, ok := Normalize(v)
	if !ok {
		return nil
	}
	return &f
}
