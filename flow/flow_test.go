package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowdiff/errors"
)

func testDocument() *Document {
	return &Document{
		Name: "Test Flow",
		Nodes: []Node{
			{
				ID:            "a",
				ComponentType: "ChatInput",
				Position:      &Position{X: 0, Y: 0},
				Parameters:    map[string]any{"input_value": "hi", "opts": map[string]any{"x": 1.0}},
				OutputPorts:   []PortDescriptor{{Name: "message", Types: []string{"Message"}}},
			},
			{
				ID:            "b",
				ComponentType: "ChatOutput",
				Position:      &Position{X: 300, Y: 0},
				Parameters:    map[string]any{},
			},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b", SourceHandle: "sh", TargetHandle: "th"},
		},
		Tags:     []string{"demo"},
		Metadata: map[string]any{"owner": map[string]any{"team": "x"}},
	}
}

// TestDocumentValidate tests the structural invariants of Document.Validate
func TestDocumentValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *Document)
		wantError bool
	}{
		{name: "valid document", mutate: func(_ *Document) {}},
		{name: "missing nodes array", mutate: func(d *Document) { d.Nodes = nil; d.Edges = nil }, wantError: true},
		{name: "empty name", mutate: func(d *Document) { d.Name = "" }, wantError: true},
		{name: "empty node id", mutate: func(d *Document) { d.Nodes[1].ID = "" }, wantError: true},
		{name: "duplicate node id", mutate: func(d *Document) { d.Nodes[1].ID = "a" }, wantError: true},
		{name: "unknown edge source", mutate: func(d *Document) { d.Edges[0].Source = "zzz" }, wantError: true},
		{name: "unknown edge target", mutate: func(d *Document) { d.Edges[0].Target = "zzz" }, wantError: true},
		{name: "self-loop", mutate: func(d *Document) { d.Edges[0].Target = "a" }, wantError: true},
		{
			name: "duplicate edge triple",
			mutate: func(d *Document) {
				d.Edges = append(d.Edges, Edge{ID: "e2", Source: "a", Target: "b", SourceHandle: "other", TargetHandle: "th"})
			},
			wantError: true,
		},
		{
			name: "same pair on different target handle",
			mutate: func(d *Document) {
				d.Edges = append(d.Edges, Edge{ID: "e2", Source: "a", Target: "b", SourceHandle: "sh", TargetHandle: "th2"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			tt.mutate(doc)
			err := doc.Validate()
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err), "expected invalid error, got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	doc := testDocument()
	clone := doc.Clone()
	require.Equal(t, doc, clone)

	clone.Nodes[0].Parameters["input_value"] = "changed"
	clone.Nodes[0].Parameters["opts"].(map[string]any)["x"] = 2.0
	clone.Nodes[0].Position.X = 99
	clone.Nodes[0].OutputPorts[0].Types[0] = "Data"
	clone.Edges[0].Target = "c"
	clone.Tags[0] = "changed"
	clone.Metadata["owner"].(map[string]any)["team"] = "y"

	assert.Equal(t, testDocument(), doc)
}

func TestClone_PreservesNil(t *testing.T) {
	doc := &Document{Name: "x"}
	clone := doc.Clone()
	assert.Nil(t, clone.Nodes)
	assert.Nil(t, clone.Edges)
	assert.Nil(t, clone.Metadata)

	doc = &Document{Name: "x", Nodes: []Node{}, Edges: []Edge{}}
	clone = doc.Clone()
	assert.NotNil(t, clone.Nodes)
	assert.Empty(t, clone.Nodes)

	var nilDoc *Document
	assert.Nil(t, nilDoc.Clone())
}

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(`{"name":"T","nodes":[{"id":"a","componentType":"X","parameters":{}}],"edges":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "T", doc.Name)
	require.Len(t, doc.Nodes, 1)
	assert.Nil(t, doc.Nodes[0].Position)

	doc, err = Parse([]byte(`{"name":"T"}`))
	require.NoError(t, err)
	assert.Nil(t, doc.Nodes, "absent nodes must stay nil")

	_, err = Parse([]byte(`{"name":`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrMalformedFlow)
}

func TestPosition_LenientDecode(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		valid bool
		want  Position
	}{
		{"numbers", `{"x": 10, "y": -2.5}`, true, Position{X: 10, Y: -2.5}},
		{"string coordinate", `{"x": "left", "y": 0}`, false, Position{}},
		{"null coordinate", `{"x": null, "y": 4}`, false, Position{Y: 4}},
		{"missing coordinate", `{"x": 3}`, false, Position{X: 3}},
		{"not an object", `"top-left"`, false, Position{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Position
			require.NoError(t, json.Unmarshal([]byte(tt.json), &p))
			assert.Equal(t, tt.valid, p.Valid())
			assert.Equal(t, tt.want.X, p.X)
			assert.Equal(t, tt.want.Y, p.Y)
		})
	}

	doc, err := Parse([]byte(`{"name":"T","nodes":[{"id":"a","componentType":"X","position":{"x":"left","y":0},"parameters":{}}],"edges":[]}`))
	require.NoError(t, err)
	require.NotNil(t, doc.Nodes[0].Position)
	assert.False(t, doc.Nodes[0].Position.Valid())
	assert.False(t, doc.Clone().Nodes[0].Position.Valid(), "clone keeps the invalid mark")
}

func TestLookups(t *testing.T) {
	doc := testDocument()
	assert.Equal(t, 1, doc.NodeIndex("b"))
	assert.Equal(t, -1, doc.NodeIndex("zzz"))
	assert.True(t, doc.HasNode("a"))

	n, ok := doc.Node("a")
	require.True(t, ok)
	assert.Equal(t, "ChatInput", n.ComponentType)

	assert.Len(t, doc.EdgesOf("a"), 1)
	assert.Empty(t, doc.EdgesOf("zzz"))
	assert.Equal(t, 0, doc.EdgeIndex("e1"))
}
