package diff

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/handle"
)

// LayoutSpacing is the horizontal gap between auto-placed nodes
const LayoutSpacing = 300.0

// Update keys with special meaning in updateNode
const (
	updateKeyParameters    = "parameters"
	updateKeyTemplate      = "template"
	updateKeyPosition      = "position"
	updateKeyID            = "id"
	updateKeyComponentType = "componentType"
)

// applyStep runs one singular operation against doc, which the caller owns.
// Handlers check their own preconditions and never rely on pre-validation.
func applyStep(doc *flow.Document, cat catalog.Catalog, st step) ([]Issue, *opError) {
	switch op := st.op.(type) {
	case AddNode:
		return nil, applyAddNode(doc, cat, op)
	case RemoveNode:
		return nil, applyRemoveNode(doc, op)
	case UpdateNode:
		return applyUpdateNode(doc, cat, st, op)
	case MoveNode:
		if op.Position == nil {
			return nil, structuralError("moveNode: position is required")
		}
		node, ok := doc.Node(op.NodeID)
		if !ok {
			return nil, nodeNotFound(op.NodeID)
		}
		node.Position = op.Position.Ptr()
		return nil, nil
	case AddEdge:
		return nil, applyAddEdge(doc, cat, op)
	case RemoveEdge:
		return nil, applyRemoveEdge(doc, op)
	case UpdateMetadata:
		return applyUpdateMetadata(doc, st, op), nil
	case AddNote:
		return nil, applyAddNote(doc, op)
	default:
		return nil, structuralError("unsupported operation %T", st.op)
	}
}

func applyAddNode(doc *flow.Document, cat catalog.Catalog, op AddNode) *opError {
	if op.Node == nil {
		_, err := catalog.Resolve(cat, op.Spec.ComponentType)
		return unknownComponent(op.Spec.NodeID, err)
	}

	node := op.Node.Clone()
	if doc.HasNode(node.ID) {
		return referenceError(CodeNodeExists, node.ID, "node %q already exists", node.ID)
	}
	if node.Position == nil {
		node.Position = nextPosition(doc)
	}
	doc.Nodes = append(doc.Nodes, node)
	return nil
}

// nextPosition places a node one LayoutSpacing to the right of the rightmost
// positioned node, level with it.
func nextPosition(doc *flow.Document) *flow.Position {
	var rightmost *flow.Position
	for i := range doc.Nodes {
		p := doc.Nodes[i].Position
		if p != nil && (rightmost == nil || p.X > rightmost.X) {
			rightmost = p
		}
	}
	if rightmost == nil {
		return &flow.Position{X: float64(len(doc.Nodes)) * LayoutSpacing}
	}
	return &flow.Position{X: rightmost.X + LayoutSpacing, Y: rightmost.Y}
}

func applyRemoveNode(doc *flow.Document, op RemoveNode) *opError {
	idx := doc.NodeIndex(op.NodeID)
	if idx < 0 {
		return nodeNotFound(op.NodeID)
	}

	connected := doc.EdgesOf(op.NodeID)
	if len(connected) > 0 && !op.RemoveConnections {
		return referenceError(CodeHasConnections, op.NodeID,
			"node %q has %d connection(s); set removeConnections to remove them", op.NodeID, len(connected)).
			withFix("set removeConnections to true")
	}

	doc.Nodes = slices.Delete(doc.Nodes, idx, idx+1)
	doc.Edges = slices.DeleteFunc(doc.Edges, func(e flow.Edge) bool {
		return e.Source == op.NodeID || e.Target == op.NodeID
	})
	return nil
}

// applyUpdateNode applies the updates and rebuilds the node's parameters
// from its catalog schema: declared parameters appear in schema order, taking
// the update, else the current non-null value, else the default. Parameters
// the schema does not declare are kept. Output ports are refreshed from the
// schema.
func applyUpdateNode(doc *flow.Document, cat catalog.Catalog, st step, op UpdateNode) ([]Issue, *opError) {
	node, ok := doc.Node(op.NodeID)
	if !ok {
		return nil, nodeNotFound(op.NodeID)
	}
	schema, err := catalog.Resolve(cat, node.ComponentType)
	if err != nil {
		return nil, unknownComponent(node.ID, err)
	}

	overrides := make(map[string]any)
	var warnings []Issue
	set := func(key string, value any) {
		value = unwrapValue(value)
		if op.Merge {
			current, ok := overrides[key]
			if !ok {
				current = node.Parameters[key]
			}
			merged, anomalies := Merge(key, current, value)
			value = merged
			for _, a := range anomalies {
				warnings = append(warnings, advisory(st.index, st.kind, CodeMergeAnomaly, node.ID, a.Path, "%s", a))
			}
		}
		overrides[key] = flow.CloneValue(value)
	}

	for _, key := range sortedKeys(op.Updates) {
		value := op.Updates[key]
		switch key {
		case updateKeyID, updateKeyComponentType:
			current := node.ID
			if key == updateKeyComponentType {
				current = node.ComponentType
			}
			if s, ok := value.(string); ok && s == current {
				continue
			}
			return nil, invalidUpdate(node.ID, key, "%s of node %q cannot be changed", key, node.ID)
		case updateKeyPosition:
			pos, ok := positionOf(unwrapValue(value))
			if !ok {
				return nil, invalidUpdate(node.ID, key, "position of node %q must be an object with numeric x and y", node.ID)
			}
			node.Position = pos
		case updateKeyParameters, updateKeyTemplate:
			bag, ok := value.(map[string]any)
			if !ok && key == updateKeyTemplate {
				// a scalar template is the template parameter itself
				set(key, value)
				continue
			}
			if !ok {
				return nil, invalidUpdate(node.ID, key, "%s update of node %q must be an object", key, node.ID)
			}
			for _, name := range sortedKeys(bag) {
				set(name, bag[name])
			}
		default:
			set(key, value)
		}
	}

	params := make(map[string]any, len(schema.Parameters)+len(node.Parameters))
	for _, p := range schema.Parameters {
		if v, ok := overrides[p.Name]; ok {
			params[p.Name] = v
			continue
		}
		if v, ok := node.Parameters[p.Name]; ok && v != nil {
			params[p.Name] = v
			continue
		}
		params[p.Name] = flow.CloneValue(p.Default)
	}
	for k, v := range node.Parameters {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}
	for k, v := range overrides {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	node.Parameters = params
	node.OutputPorts = schema.Ports()
	return warnings, nil
}

func invalidUpdate(nodeID, field, format string, args ...any) *opError {
	e := referenceError(CodeInvalidUpdate, nodeID, format, args...)
	e.field = field
	return e
}

// updatedParams returns the parameter names an update touches, sorted
func updatedParams(updates map[string]any) []string {
	seen := make(map[string]bool)
	for key, value := range updates {
		switch key {
		case updateKeyID, updateKeyComponentType, updateKeyPosition:
		case updateKeyParameters, updateKeyTemplate:
			bag, ok := value.(map[string]any)
			if !ok && key == updateKeyTemplate {
				seen[key] = true
			}
			for name := range bag {
				seen[name] = true
			}
		default:
			seen[key] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func positionOf(v any) (*flow.Position, bool) {
	switch p := v.(type) {
	case flow.Position:
		return p.Ptr(), true
	case *flow.Position:
		if p == nil {
			return nil, false
		}
		return p.Ptr(), true
	case map[string]any:
		x, okX := number(p["x"])
		y, okY := number(p["y"])
		if !okX || !okY {
			return nil, false
		}
		return &flow.Position{X: x, Y: y}, true
	default:
		return nil, false
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func resolveOrNil(cat catalog.Catalog, componentType string) *catalog.Schema {
	schema, err := catalog.Resolve(cat, componentType)
	if err != nil {
		return nil
	}
	return schema
}

func applyAddEdge(doc *flow.Document, cat catalog.Catalog, op AddEdge) *opError {
	sourceID, targetID := op.Endpoints()
	source, ok := doc.Node(sourceID)
	if !ok {
		return referenceError(CodeNodeNotFound, sourceID, "source node %q not found", sourceID)
	}
	target, ok := doc.Node(targetID)
	if !ok {
		return referenceError(CodeNodeNotFound, targetID, "target node %q not found", targetID)
	}
	if sourceID == targetID {
		return referenceError(CodeSelfLoop, sourceID, "edge from %q to itself is not allowed", sourceID)
	}

	var edge flow.Edge
	if op.Edge != nil {
		edge = *op.Edge
	} else {
		targetSchema := resolveOrNil(cat, target.ComponentType)
		field := handle.TargetField(targetSchema, op.Spec.TargetParam)
		edge = flow.Edge{
			Source:       sourceID,
			Target:       targetID,
			SourceHandle: handle.SourceFor(doc, source, resolveOrNil(cat, source.ComponentType)),
			TargetHandle: handle.TargetFor(doc, target, field, targetSchema),
		}
	}
	if edge.ID == "" {
		edge.ID = handle.EdgeID(edge.Source, edge.SourceHandle, edge.Target, edge.TargetHandle)
	}

	key := edge.Key()
	for _, e := range doc.Edges {
		if e.Key() == key {
			err := referenceError(CodeEdgeExists, targetID, "edge from %q to %q already exists", sourceID, targetID)
			err.edgeID = e.ID
			err.field = fieldOf(e.TargetHandle)
			return err
		}
		if e.ID == edge.ID {
			err := referenceError(CodeEdgeExists, targetID, "edge %q already exists", edge.ID)
			err.edgeID = e.ID
			return err
		}
	}
	doc.Edges = append(doc.Edges, edge)
	return nil
}

func applyRemoveEdge(doc *flow.Document, op RemoveEdge) *opError {
	before := len(doc.Edges)
	doc.Edges = slices.DeleteFunc(doc.Edges, func(e flow.Edge) bool {
		return e.Source == op.Source && e.Target == op.Target &&
			(op.SourceHandle == "" || handle.Equal(e.SourceHandle, op.SourceHandle)) &&
			(op.TargetHandle == "" || handle.Equal(e.TargetHandle, op.TargetHandle)) &&
			(op.TargetParam == "" || fieldOf(e.TargetHandle) == op.TargetParam)
	})
	if len(doc.Edges) == before {
		return edgeNotFound(op)
	}
	return nil
}

func applyUpdateMetadata(doc *flow.Document, st step, op UpdateMetadata) []Issue {
	if op.Name != nil {
		doc.Name = *op.Name
	}
	if op.Description != nil {
		doc.Description = *op.Description
	}
	if op.Tags != nil {
		doc.Tags = slices.Clone(op.Tags)
	}
	if op.Metadata == nil {
		return nil
	}

	merged, anomalies := MergeMaps("metadata", doc.Metadata, op.Metadata)
	doc.Metadata = merged
	var warnings []Issue
	for _, a := range anomalies {
		warnings = append(warnings, advisory(st.index, st.kind, CodeMergeAnomaly, "", a.Path, "%s", a))
	}
	return warnings
}

func applyAddNote(doc *flow.Document, op AddNote) *opError {
	if op.Position == nil {
		return structuralError("addNote: position is required")
	}
	taken := make(map[string]bool, len(doc.Notes))
	for _, n := range doc.Notes {
		taken[n.ID] = true
	}

	id := op.ID
	if id == "" {
		for i := 1; ; i++ {
			id = fmt.Sprintf("note-%d", i)
			if !taken[id] {
				break
			}
		}
	} else if taken[id] {
		return referenceError(CodeNoteExists, "", "note %q already exists", id)
	}

	doc.Notes = append(doc.Notes, flow.Note{ID: id, Text: op.Text, Position: *op.Position, Color: op.Color})
	return nil
}
