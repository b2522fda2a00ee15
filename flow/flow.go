package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/c360/flowdiff/errors"
)

// Document is a visual dataflow graph: typed nodes wired together by typed edges.
type Document struct {
	// Store identity, managed by flowstore. The diff engine never touches these.
	ID        string     `json:"id,omitempty"`
	Version   int64      `json:"version,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Notes       []Note         `json:"notes,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Node is a component instance on the canvas
type Node struct {
	ID            string           `json:"id"`
	ComponentType string           `json:"componentType"`
	Position      *Position        `json:"position,omitempty"`
	Parameters    map[string]any   `json:"parameters"`
	OutputPorts   []PortDescriptor `json:"outputPorts,omitempty"`
}

// PortDescriptor describes one output port of a node and the data types it emits
type PortDescriptor struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

// Edge connects an output port of Source to an input field of Target.
// SourceHandle and TargetHandle are handle-codec encoded.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

// Note is a documentation element on the canvas. It is never executed or connected.
type Note struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Position Position `json:"position"`
	Color    string   `json:"color,omitempty"`
}

// Position represents canvas coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// set when a decoded coordinate was missing, null or not a number
	invalid bool
}

// UnmarshalJSON decodes leniently: a position that is not an object or whose
// coordinates are not numbers decodes as an invalid position instead of
// failing the whole document.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		*p = Position{invalid: true}
		return nil
	}
	x, okX := coordinate(raw["x"])
	y, okY := coordinate(raw["y"])
	*p = Position{X: x, Y: y, invalid: !okX || !okY}
	return nil
}

func coordinate(raw json.RawMessage) (float64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return 0, false
	}
	return f, true
}

// Valid reports whether both coordinates are finite numbers
func (p Position) Valid() bool {
	if p.invalid {
		return false
	}
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Ptr returns a pointer to a copy of p
func (p Position) Ptr() *Position {
	return &p
}

// Parse decodes a flow document from JSON
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrMalformedFlow, err),
			"flow", "Parse", "decode document")
	}
	return &doc, nil
}

// NodeIndex returns the index of the node with the given id, or -1
func (d *Document) NodeIndex(id string) int {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Node returns the node with the given id
func (d *Document) Node(id string) (*Node, bool) {
	idx := d.NodeIndex(id)
	if idx < 0 {
		return nil, false
	}
	return &d.Nodes[idx], true
}

// HasNode reports whether a node with the given id exists
func (d *Document) HasNode(id string) bool {
	return d.NodeIndex(id) >= 0
}

// EdgesOf returns the edges that reference nodeID as source or target
func (d *Document) EdgesOf(nodeID string) []Edge {
	var result []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID || e.Target == nodeID {
			result = append(result, e)
		}
	}
	return result
}

// EdgeIndex returns the index of the edge with the given id, or -1
func (d *Document) EdgeIndex(id string) int {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate checks the structural invariants of the document: unique node ids,
// edges referencing existing nodes, no self-loops, and unique
// (source, target, targetHandle) triples. It does not consult a catalog.
func (d *Document) Validate() error {
	if d.Nodes == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nodes array is missing", errors.ErrMalformedFlow),
			"flow", "Validate", "nodes validation")
	}
	if d.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("flow name cannot be empty"),
			"flow", "Validate", "name validation")
	}

	nodeIDs := make(map[string]bool, len(d.Nodes))
	for i, node := range d.Nodes {
		if node.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node at index %d has empty ID", i),
				"flow", "Validate", "node ID validation")
		}
		if nodeIDs[node.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate node ID: %s", node.ID),
				"flow", "Validate", "duplicate node ID detected")
		}
		nodeIDs[node.ID] = true
	}

	triples := make(map[EdgeKey]bool, len(d.Edges))
	for i, edge := range d.Edges {
		if !nodeIDs[edge.Source] {
			return errors.WrapInvalid(
				fmt.Errorf("edge %d (%s) references non-existent source node: %s", i, edge.ID, edge.Source),
				"flow", "Validate", "edge source validation")
		}
		if !nodeIDs[edge.Target] {
			return errors.WrapInvalid(
				fmt.Errorf("edge %d (%s) references non-existent target node: %s", i, edge.ID, edge.Target),
				"flow", "Validate", "edge target validation")
		}
		if edge.Source == edge.Target {
			return errors.WrapInvalid(
				fmt.Errorf("edge %d (%s) is a self-loop on node %s", i, edge.ID, edge.Source),
				"flow", "Validate", "self-loop detected")
		}
		key := edge.Key()
		if triples[key] {
			return errors.WrapInvalid(
				fmt.Errorf("duplicate edge %s -> %s on the same target handle", edge.Source, edge.Target),
				"flow", "Validate", "duplicate edge detected")
		}
		triples[key] = true
	}

	return nil
}

// EdgeKey identifies an edge by its wiring. No two edges in a document share a key.
type EdgeKey struct {
	Source       string
	Target       string
	TargetHandle string
}

// Key returns the wiring identity of the edge
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, TargetHandle: e.TargetHandle}
}
