package numeric

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
		ok    bool
	}{
		{"float", 127000.0, 127000, true},
		{"int", 42, 42, true},
		{"int64", int64(7), 7, true},
		{"json number", json.Number("385.50"), 385.5, true},
		{"plain string", "1000", 1000, true},
		{"decimal string", "385.25", 385.25, true},
		{"thousands separators", "1,27,000", 127000, true},
		{"rupee prefix", "₹77,000", 77000, true},
		{"dollar prefix", "$1,250.75", 1250.75, true},
		{"rs prefix", "Rs. 500", 500, true},
		{"surrounding whitespace", "  250.00  ", 250, true},
		{"nested value wrapper", map[string]any{"value": "1,000"}, 1000, true},
		{"nested numeric wrapper", map[string]any{"value": 77.5}, 77.5, true},
		{"nil", nil, 0, false},
		{"empty string", "", 0, false},
		{"garbage string", "ten lakh", 0, false},
		{"currency only", "₹", 0, false},
		{"wrapper without value key", map[string]any{"amount": 5.0}, 0, false},
		{"doubly nested wrapper", map[string]any{"value": map[string]any{"value": 5.0}}, 0, false},
		{"bool", true, 0, false},
		{"slice", []any{1.0}, 0, false},
		{"nan string", "NaN", 0, false},
		{"inf string", "Inf", 0, false},
		{"negative inf string", "-Inf", 0, false},
		{"infinity string", "Infinity", 0, false},
		{"nan float", math.NaN(), 0, false},
		{"inf float", math.Inf(1), 0, false},
		{"negative inf float", math.Inf(-1), 0, false},
		{"nan in wrapper", map[string]any{"value": "NaN"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.input)
			if ok != tt.ok {
				t.Fatalf("Normalize(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Normalize(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePtr(t *testing.T) {
	if p := NormalizePtr("not a number"); p != nil {
		t.Errorf("expected nil for unparseable input, got %v", *p)
	}
	p := NormalizePtr("1,000.50")
	if p == nil || *p != 1000.5 {
		t.Errorf("expected 1000.5, got %v", p)
	}
}
