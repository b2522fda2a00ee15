package handle

import (
	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
)

// Defaults used when neither an existing edge nor the catalog supplies a port
const (
	DefaultOutputName = "output"
	DefaultFieldName  = "input_value"
	DefaultFieldType  = "str"
)

// DefaultTypes is the data type list of synthesized ports
var DefaultTypes = []string{"Message"}

// SourceFor returns the sourceHandle for a new edge leaving node. An existing
// edge out of the same node is copied verbatim; otherwise the handle is built
// from the first output port of schema, then of the node, then a default
// "output" port. schema may be nil.
func SourceFor(doc *flow.Document, node *flow.Node, schema *catalog.Schema) string {
	for _, e := range doc.Edges {
		if e.Source == node.ID && e.SourceHandle != "" {
			return e.SourceHandle
		}
	}

	src := Source{DataType: node.ComponentType, ID: node.ID, Name: DefaultOutputName, OutputTypes: DefaultTypes}
	switch {
	case schema != nil && len(schema.OutputPorts) > 0:
		src.Name = schema.OutputPorts[0].Name
		src.OutputTypes = schema.OutputPorts[0].Types
	case len(node.OutputPorts) > 0:
		src.Name = node.OutputPorts[0].Name
		src.OutputTypes = node.OutputPorts[0].Types
	}
	return src.Encode()
}

// TargetFor returns the targetHandle for a new edge into field of node. An
// existing edge into the same field is copied verbatim; otherwise the handle is
// built from the declared parameter, defaulting to a string port accepting
// Message. schema may be nil.
func TargetFor(doc *flow.Document, node *flow.Node, field string, schema *catalog.Schema) string {
	for _, e := range doc.Edges {
		if e.Target != node.ID || e.TargetHandle == "" {
			continue
		}
		if t, err := DecodeTarget(e.TargetHandle); err == nil && t.FieldName == field {
			return e.TargetHandle
		}
	}

	tgt := Target{FieldName: field, ID: node.ID, InputTypes: DefaultTypes, Type: DefaultFieldType}
	if schema != nil {
		if p, ok := schema.Param(field); ok {
			tgt.Type = p.Type
			if len(p.InputTypes) > 0 {
				tgt.InputTypes = p.InputTypes
			}
		}
	}
	return tgt.Encode()
}

// TargetField picks the input field for an edge when the caller named none:
// the first parameter declaring input types, else DefaultFieldName.
func TargetField(schema *catalog.Schema, requested string) string {
	if requested != "" {
		return requested
	}
	if schema != nil {
		for _, p := range schema.Parameters {
			if len(p.InputTypes) > 0 {
				return p.Name
			}
		}
	}
	return DefaultFieldName
}
