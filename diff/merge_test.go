package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		existing  any
		incoming  any
		expected  any
		anomalies []Anomaly
	}{
		{
			name:     "objects merge recursively",
			existing: map[string]any{"a": 1.0, "nested": map[string]any{"x": "old", "keep": true}},
			incoming: map[string]any{"b": 2.0, "nested": map[string]any{"x": "new"}},
			expected: map[string]any{"a": 1.0, "b": 2.0, "nested": map[string]any{"x": "new", "keep": true}},
		},
		{
			name:     "lists are replaced",
			existing: []any{1.0, 2.0},
			incoming: []any{3.0},
			expected: []any{3.0},
		},
		{
			name:     "null existing takes incoming",
			existing: nil,
			incoming: map[string]any{"a": 1.0},
			expected: map[string]any{"a": 1.0},
		},
		{
			name:     "null incoming replaces",
			existing: "text",
			incoming: nil,
			expected: nil,
		},
		{
			name:      "kind change is reported",
			existing:  map[string]any{"a": 1.0},
			incoming:  []any{"x"},
			expected:  []any{"x"},
			anomalies: []Anomaly{{Path: "p", Existing: ValueObject, Incoming: ValueList}},
		},
		{
			name:      "nested kind change carries the path",
			existing:  map[string]any{"a": map[string]any{"b": "s"}},
			incoming:  map[string]any{"a": map[string]any{"b": map[string]any{}}},
			expected:  map[string]any{"a": map[string]any{"b": map[string]any{}}},
			anomalies: []Anomaly{{Path: "p.a.b", Existing: ValueScalar, Incoming: ValueObject}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, anomalies := Merge("p", tt.existing, tt.incoming)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.anomalies, anomalies)
		})
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	existing := map[string]any{"a": map[string]any{"b": 1.0}}
	incoming := map[string]any{"a": map[string]any{"c": 2.0}}

	got, _ := Merge("", existing, incoming)
	got.(map[string]any)["a"].(map[string]any)["d"] = 3.0

	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1.0}}, existing)
	assert.Equal(t, map[string]any{"a": map[string]any{"c": 2.0}}, incoming)
}

func TestMergeMaps_NilExisting(t *testing.T) {
	got, anomalies := MergeMaps("metadata", nil, map[string]any{"k": "v"})
	assert.Equal(t, map[string]any{"k": "v"}, got)
	assert.Empty(t, anomalies)
}

func TestUnwrapValue(t *testing.T) {
	assert.Equal(t, 0.5, unwrapValue(map[string]any{"value": 0.5}))
	assert.Equal(t, map[string]any{"value": 1.0, "x": 2.0}, unwrapValue(map[string]any{"value": 1.0, "x": 2.0}))
	assert.Equal(t, "plain", unwrapValue("plain"))
}
