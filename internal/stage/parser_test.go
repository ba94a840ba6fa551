package stage

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

// --- AsObject tests ---

func TestAsObject_NonObjects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "nil", input: nil},
		{name: "array", input: []any{1, 2}},
		{name: "string", input: "string"},
		{name: "number", input: float64(42)},
		{name: "bool", input: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, ok := AsObject(tt.input)
			if ok || obj != nil {
				t.Errorf("expected no object for %v, got %v", tt.input, obj)
			}
		})
	}
}

func TestAsObject_Object(t *testing.T) {
	obj, ok := AsObject(map[string]any{"winner": "A"})
	if !ok {
		t.Fatal("expected object")
	}
	if obj["winner"] != "A" {
		t.Errorf("unexpected object contents: %v", obj)
	}
}

// --- Num tests ---

func TestNum(t *testing.T) {
	tests := []struct {
		name     string
		obj      map[string]any
		key      string
		expected float64
	}{
		{name: "float", obj: map[string]any{"v": 0.81}, key: "v", expected: 0.81},
		{name: "numeric string", obj: map[string]any{"v": "1.5"}, key: "v", expected: 1.5},
		{name: "json number", obj: map[string]any{"v": json.Number("2.25")}, key: "v", expected: 2.25},
		{name: "missing key", obj: map[string]any{}, key: "v", expected: 0},
		{name: "nil object", obj: nil, key: "v", expected: 0},
		{name: "non-numeric string", obj: map[string]any{"v": "abc"}, key: "v", expected: 0},
		{name: "nan", obj: map[string]any{"v": math.NaN()}, key: "v", expected: 0},
		{name: "positive infinity", obj: map[string]any{"v": math.Inf(1)}, key: "v", expected: 0},
		{name: "nested object", obj: map[string]any{"v": map[string]any{}}, key: "v", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Num(tt.obj, tt.key)
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
			if math.IsNaN(got) {
				t.Error("Num must never return NaN")
			}
		})
	}
}

// --- Str tests ---

func TestStr(t *testing.T) {
	tests := []struct {
		name     string
		obj      map[string]any
		expected string
	}{
		{name: "string value", obj: map[string]any{"v": "B"}, expected: "B"},
		{name: "number coerced", obj: map[string]any{"v": float64(7)}, expected: "7"},
		{name: "bool coerced", obj: map[string]any{"v": true}, expected: "true"},
		{name: "explicit empty string kept", obj: map[string]any{"v": ""}, expected: ""},
		{name: "missing falls back", obj: map[string]any{}, expected: "TIE"},
		{name: "nil object falls back", obj: nil, expected: "TIE"},
		{name: "object falls back", obj: map[string]any{"v": map[string]any{}}, expected: "TIE"},
		{name: "array falls back", obj: map[string]any{"v": []any{"A"}}, expected: "TIE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Str(tt.obj, "v", "TIE"); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// --- List tests ---

func TestList_NonArrayIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		obj  map[string]any
	}{
		{name: "missing", obj: map[string]any{}},
		{name: "string", obj: map[string]any{"v": "not a list"}},
		{name: "object", obj: map[string]any{"v": map[string]any{}}},
		{name: "nil object", obj: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := List(tt.obj, "v"); len(got) != 0 {
				t.Errorf("expected empty list, got %v", got)
			}
		})
	}
}

// --- Clamp01 tests ---

func TestClamp01(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{input: 0.5, expected: 0.5},
		{input: -0.2, expected: 0},
		{input: 1.7, expected: 1},
		{input: math.NaN(), expected: 0},
		{input: math.Inf(1), expected: 0},
	}

	for _, tt := range tests {
		if got := Clamp01(tt.input); got != tt.expected {
			t.Errorf("Clamp01(%v): expected %v, got %v", tt.input, tt.expected, got)
		}
	}
}

// --- idempotent parsing (same malformed payload parses identically twice) ---

func TestParseVerdict_MalformedIsIdempotent(t *testing.T) {
	malformed := map[string]any{
		"winner":            []any{"not", "a", "scalar"},
		"confidence":        "not a number",
		"scores":            "not an object",
		"prioritized_fixes": map[string]any{"not": "an array"},
	}

	first := ParseVerdict(malformed)
	second := ParseVerdict(malformed)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing the same payload twice diverged:\n%+v\n%+v", first, second)
	}
	if first.Winner != "TIE" || first.Confidence != 0 || first.ScoreA != 0 || first.ScoreB != 0 {
		t.Errorf("expected fully defaulted verdict, got %+v", first)
	}
	if len(first.PrioritizedFixes) != 0 {
		t.Errorf("expected no fixes, got %v", first.PrioritizedFixes)
	}
}

func TestParseListing_Defaults(t *testing.T) {
	out := ParseListing(nil)
	if out.Provider != "unknown" {
		t.Errorf("expected provider fallback, got %q", out.Provider)
	}
	if out.ItemA.Title != "No title" || out.ItemB.Title != "No title" {
		t.Errorf("expected title fallback, got %+v", out)
	}
}

func TestParseListing_ItemProviderInheritsTopLevel(t *testing.T) {
	out := ParseListing(map[string]any{
		"provider": "catalogapi",
		"item_a":   map[string]any{"identifier": "B0A", "title": "Widget A"},
	})
	if out.ItemA.Provider != "catalogapi" {
		t.Errorf("expected inherited provider, got %q", out.ItemA.Provider)
	}
	if out.ItemA.Identifier != "B0A" || out.ItemA.Title != "Widget A" {
		t.Errorf("unexpected item: %+v", out.ItemA)
	}
}

func TestParseEvidence_Defaults(t *testing.T) {
	out := ParseEvidence(map[string]any{
		"evidence": []any{
			map[string]any{"identifier": "B0A", "factor": "contrast", "detail": "brighter hero shot"},
			map[string]any{},
			"not an object",
		},
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 evidence items, got %d", len(out))
	}
	if out[0].Identifier != "B0A" || out[0].Factor != "contrast" {
		t.Errorf("unexpected first item: %+v", out[0])
	}
	if out[1].Identifier != "?" || out[1].Factor != "factor" || out[1].Detail != "" {
		t.Errorf("expected defaulted second item, got %+v", out[1])
	}
}

func TestParseAvatars_Defaults(t *testing.T) {
	out := ParseAvatars(map[string]any{
		"avatars": []any{
			map[string]any{
				"name":        "Budget Shopper",
				"leans_to":    "B",
				"cares_about": []any{"price", float64(2), map[string]any{}},
			},
			map[string]any{},
		},
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 avatars, got %d", len(out))
	}
	if !reflect.DeepEqual(out[0].CaresAbout, []string{"price", "2"}) {
		t.Errorf("unexpected cares_about: %v", out[0].CaresAbout)
	}
	if out[1].Name != "Persona" || out[1].LeansTo != "TIE" {
		t.Errorf("expected defaulted avatar, got %+v", out[1])
	}
}

func TestParseVerdict_Complete(t *testing.T) {
	out := ParseVerdict(map[string]any{
		"winner":     "A",
		"confidence": 1.4,
		"scores": map[string]any{
			"item_a": map[string]any{"total": 0.8123},
			"item_b": map[string]any{"total": 0.7011},
		},
		"prioritized_fixes": []any{
			map[string]any{"title": "Sharpen main image", "reason": "soft focus"},
		},
	})
	if out.Winner != "A" {
		t.Errorf("unexpected winner: %q", out.Winner)
	}
	if out.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", out.Confidence)
	}
	if out.ScoreA != 0.8123 || out.ScoreB != 0.7011 {
		t.Errorf("unexpected scores: %v / %v", out.ScoreA, out.ScoreB)
	}
	if len(out.PrioritizedFixes) != 1 || out.PrioritizedFixes[0].Title != "Sharpen main image" {
		t.Errorf("unexpected fixes: %+v", out.PrioritizedFixes)
	}
}
