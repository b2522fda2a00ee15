package testutil

import (
	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/handle"
)

// FlowBuilder assembles flow documents for tests. Nodes added without
// parameters get the catalog defaults; edges get handles built the same way
// the diff engine builds them.
type FlowBuilder struct {
	doc *flow.Document
	cat catalog.Map
}

// NewFlow starts a document with the given name against Catalog()
func NewFlow(name string) *FlowBuilder {
	return &FlowBuilder{
		doc: &flow.Document{Name: name, Nodes: []flow.Node{}, Edges: []flow.Edge{}},
		cat: Catalog(),
	}
}

// Node adds a node. With nil params the catalog defaults are used.
func (b *FlowBuilder) Node(id, componentType string, params map[string]any) *FlowBuilder {
	node := flow.Node{
		ID:            id,
		ComponentType: componentType,
		Position:      &flow.Position{X: float64(len(b.doc.Nodes)) * 300},
		Parameters:    params,
	}
	if schema, ok := b.cat.Lookup(componentType); ok {
		if node.Parameters == nil {
			node.Parameters = schema.Defaults()
		}
		node.OutputPorts = schema.Ports()
	}
	if node.Parameters == nil {
		node.Parameters = map[string]any{}
	}
	b.doc.Nodes = append(b.doc.Nodes, node)
	return b
}

// Edge connects source to field on target. An empty field picks the default input.
func (b *FlowBuilder) Edge(source, target, field string) *FlowBuilder {
	src, _ := b.doc.Node(source)
	tgt, _ := b.doc.Node(target)
	srcSchema, _ := b.cat.Lookup(src.ComponentType)
	tgtSchema, _ := b.cat.Lookup(tgt.ComponentType)

	field = handle.TargetField(tgtSchema, field)
	sh := handle.SourceFor(b.doc, src, srcSchema)
	th := handle.TargetFor(b.doc, tgt, field, tgtSchema)
	b.doc.Edges = append(b.doc.Edges, flow.Edge{
		ID:           handle.EdgeID(source, sh, target, th),
		Source:       source,
		Target:       target,
		SourceHandle: sh,
		TargetHandle: th,
	})
	return b
}

// Build returns the document. The builder must not be reused.
func (b *FlowBuilder) Build() *flow.Document {
	return b.doc
}

// ChatFlow returns ChatInput -> OpenAIModel -> ChatOutput with the API key set
func ChatFlow() *flow.Document {
	b := NewFlow("Basic Chat").
		Node("input", "ChatInput", nil).
		Node("model", "OpenAIModel", nil).
		Node("output", "ChatOutput", nil).
		Edge("input", "model", "input_value").
		Edge("model", "output", "input_value")
	model, _ := b.doc.Node("model")
	model.Parameters["api_key"] = "sk-test"
	return b.Build()
}
