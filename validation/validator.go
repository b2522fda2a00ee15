package validation

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/handle"
)

// Validator checks flow documents against a component catalog. It holds no
// per-call state and is safe for concurrent use.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a validator. A nil logger discards debug tracing.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Validator{logger: logger}
}

// ValidateFlow validates doc against cat with a silent validator
func ValidateFlow(doc *flow.Document, cat catalog.Catalog) *Result {
	return NewValidator(nil).Validate(doc, cat)
}

// Validate inspects doc and returns every issue found. It never mutates doc,
// and the same document and catalog always yield the same issues in the
// same order.
func (v *Validator) Validate(doc *flow.Document, cat catalog.Catalog) *Result {
	result := &Result{Issues: []Issue{}}

	if doc == nil || doc.Nodes == nil {
		result.addError(CodeMissingNodes, Issue{
			Message:      "flow document has no nodes array",
			SuggestedFix: `add a "nodes" array, empty if the flow has no components yet`,
		})
		return result
	}

	result.Summary.Nodes = len(doc.Nodes)
	result.Summary.Edges = len(doc.Edges)
	result.Summary.Notes = len(doc.Notes)

	v.logger.Debug("validating flow",
		"name", doc.Name,
		"nodes", len(doc.Nodes),
		"edges", len(doc.Edges))

	if doc.Name == "" {
		result.addError(CodeEmptyName, Issue{
			Message:      "flow name cannot be empty",
			SuggestedFix: "set a name with updateMetadata",
		})
	}

	nodeIDs := make(map[string]bool, len(doc.Nodes))
	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if node.ID != "" && nodeIDs[node.ID] {
			result.addError(CodeDuplicateNodeID, Issue{
				NodeID:  node.ID,
				Message: fmt.Sprintf("duplicate node id %q", node.ID),
			})
		}
		if node.ID != "" {
			nodeIDs[node.ID] = true
		}
		v.validateNode(result, i, node, cat)
	}

	v.validateEdges(result, doc, nodeIDs)

	for i, note := range doc.Notes {
		if note.ID == "" {
			result.addError(CodeMissingNoteID, Issue{
				Message: fmt.Sprintf("note at index %d has no id", i),
			})
		}
	}

	if len(doc.Nodes) > 1 {
		connected := make(map[string]bool, len(nodeIDs))
		for _, e := range doc.Edges {
			connected[e.Source] = true
			connected[e.Target] = true
		}
		for _, node := range doc.Nodes {
			if node.ID == "" || connected[node.ID] {
				continue
			}
			result.addWarning(CodeOrphanedNode, Issue{
				NodeID:       node.ID,
				Message:      fmt.Sprintf("node %q is not connected to any other node", node.ID),
				SuggestedFix: "connect it with addEdge or remove it with removeNode",
			})
		}
	}

	result.Summary.ConnectedGroups = connectedGroups(doc, nodeIDs)
	result.Valid = result.Summary.Errors == 0

	v.logger.Debug("flow validation complete",
		"valid", result.Valid,
		"errors", result.Summary.Errors,
		"warnings", result.Summary.Warnings)

	return result
}

func (v *Validator) validateNode(result *Result, index int, node *flow.Node, cat catalog.Catalog) {
	if node.ID == "" {
		result.addError(CodeMissingNodeID, Issue{
			Message: fmt.Sprintf("node at index %d has no id", index),
		})
	}

	schema, err := catalog.Resolve(cat, node.ComponentType)
	if err != nil {
		issue := Issue{NodeID: node.ID, Message: err.Error()}
		var unknown *catalog.UnknownComponentError
		if stderrors.As(err, &unknown) && unknown.Suggestion != "" {
			issue.SuggestedFix = fmt.Sprintf("use component type %q", unknown.Suggestion)
		}
		result.addError(CodeUnknownComponent, issue)
		v.logger.Debug("skipping node checks for unknown component",
			"node", node.ID, "component_type", node.ComponentType)
		return
	}

	if node.Parameters == nil {
		result.addError(CodeMissingParameters, Issue{
			NodeID:       node.ID,
			Message:      fmt.Sprintf("node %q has no parameters object", node.ID),
			SuggestedFix: "re-create the node from the catalog or set parameters with updateNode",
		})
	} else {
		v.validateParameters(result, node, schema)
	}

	if !validPosition(node.Position) {
		result.addWarning(CodeInvalidPosition, Issue{
			NodeID:       node.ID,
			Message:      fmt.Sprintf("node %q has a missing or non-numeric position", node.ID),
			SuggestedFix: "set a position with moveNode",
		})
	}
}

func (v *Validator) validateParameters(result *Result, node *flow.Node, schema *catalog.Schema) {
	for _, p := range schema.Parameters {
		value, present := node.Parameters[p.Name]
		if !present || value == nil {
			if !p.Required || p.HasDefault() {
				continue
			}
			if p.IsCredentialSlot() {
				result.addWarning(CodeUnsetCredential, Issue{
					NodeID:       node.ID,
					Field:        p.Name,
					Message:      fmt.Sprintf("credential %q is not set on node %q", p.Name, node.ID),
					SuggestedFix: "set it with updateNode or provide it at runtime",
				})
				continue
			}
			result.addError(CodeMissingRequired, Issue{
				NodeID:       node.ID,
				Field:        p.Name,
				Message:      fmt.Sprintf("missing required parameter %q on node %q", p.Name, node.ID),
				SuggestedFix: fmt.Sprintf("set %q with updateNode", p.Name),
			})
			continue
		}

		want := p.Shape()
		if got := shapeOf(value); want != catalog.ShapeAny && got != want {
			result.addError(CodeTypeMismatch, Issue{
				NodeID: node.ID,
				Field:  p.Name,
				Message: fmt.Sprintf("parameter %q on node %q must be %s, got %s",
					p.Name, node.ID, want, got),
			})
		}
	}

	var unknown []string
	for key := range node.Parameters {
		if _, ok := schema.Param(key); !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		issue := Issue{
			NodeID:  node.ID,
			Field:   key,
			Message: fmt.Sprintf("parameter %q is not declared by component %q", key, schema.Type),
		}
		if near := catalog.Nearest(key, schema.ParamNames()); near != "" {
			issue.SuggestedFix = fmt.Sprintf("did you mean %q?", near)
		}
		result.addWarning(CodeUnknownParameter, issue)
	}
}

func (v *Validator) validateEdges(result *Result, doc *flow.Document, nodeIDs map[string]bool) {
	seen := make(map[flow.EdgeKey]bool, len(doc.Edges))
	for _, e := range doc.Edges {
		if !nodeIDs[e.Source] {
			result.addError(CodeMissingSource, Issue{
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q references missing source node %q", e.ID, e.Source),
			})
		}
		if !nodeIDs[e.Target] {
			result.addError(CodeMissingTarget, Issue{
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q references missing target node %q", e.ID, e.Target),
			})
		}
		if e.Source == e.Target {
			result.addError(CodeSelfLoop, Issue{
				EdgeID:  e.ID,
				NodeID:  e.Source,
				Message: fmt.Sprintf("edge %q connects node %q to itself", e.ID, e.Source),
			})
		}

		key := e.Key()
		if seen[key] {
			result.addError(CodeDuplicateEdge, Issue{
				EdgeID:       e.ID,
				Message:      fmt.Sprintf("edge %q duplicates an existing %s -> %s connection", e.ID, e.Source, e.Target),
				SuggestedFix: "remove the duplicate with removeEdge",
			})
		}
		seen[key] = true

		v.checkHandles(result, e)
	}
}

func (v *Validator) checkHandles(result *Result, e flow.Edge) {
	if e.SourceHandle != "" {
		src, err := handle.DecodeSource(e.SourceHandle)
		switch {
		case err != nil:
			result.addWarning(CodeHandleMismatch, Issue{
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q has an undecodable sourceHandle", e.ID),
			})
		case src.ID != e.Source:
			result.addWarning(CodeHandleMismatch, Issue{
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q sourceHandle names node %q, edge source is %q", e.ID, src.ID, e.Source),
			})
		}
	}
	if e.TargetHandle != "" {
		tgt, err := handle.DecodeTarget(e.TargetHandle)
		switch {
		case err != nil:
			result.addWarning(CodeHandleMismatch, Issue{
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %q has an undecodable targetHandle", e.ID),
			})
		case tgt.ID != e.Target:
			result.addWarning(CodeHandleMismatch, Issue{
				EdgeID:  e.ID,
				Field:   tgt.FieldName,
				Message: fmt.Sprintf("edge %q targetHandle names node %q, edge target is %q", e.ID, tgt.ID, e.Target),
			})
		}
	}
}

func validPosition(p *flow.Position) bool {
	return p != nil && p.Valid()
}

// shapeOf returns the runtime shape of a parameter value
func shapeOf(v any) catalog.Shape {
	switch v.(type) {
	case string:
		return catalog.ShapeString
	case bool:
		return catalog.ShapeBoolean
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return catalog.ShapeNumber
	case map[string]any:
		return catalog.ShapeObject
	case []any:
		return catalog.ShapeArray
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Struct:
		return catalog.ShapeObject
	case reflect.Slice, reflect.Array:
		return catalog.ShapeArray
	default:
		return catalog.ShapeAny
	}
}

// connectedGroups counts the connected components of the undirected graph
// formed by nodes with ids and edges between existing nodes.
func connectedGroups(doc *flow.Document, nodeIDs map[string]bool) int {
	adjacency := make(map[string][]string, len(nodeIDs))
	for _, e := range doc.Edges {
		if nodeIDs[e.Source] && nodeIDs[e.Target] {
			adjacency[e.Source] = append(adjacency[e.Source], e.Target)
			adjacency[e.Target] = append(adjacency[e.Target], e.Source)
		}
	}

	visited := make(map[string]bool, len(nodeIDs))
	groups := 0
	for _, node := range doc.Nodes {
		if node.ID == "" || visited[node.ID] {
			continue
		}
		groups++
		stack := []string{node.ID}
		visited[node.ID] = true
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, next := range adjacency[current] {
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
	return groups
}
