package diff

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
)

// step is one singular operation produced from the input operation at index
type step struct {
	index int
	kind  Kind
	op    Operation
}

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func kindOf(op Operation) Kind {
	if op == nil {
		return ""
	}
	return op.Kind()
}

// checkStructure reports operations missing required fields or mixing the
// full and simplified forms.
func (e *Engine) checkStructure(op Operation) *opError {
	switch o := op.(type) {
	case nil:
		return structuralError("operation is nil")
	case AddNode:
		return e.checkAddNode(o)
	case AddEdge:
		return e.checkAddEdge(o)
	case AddNodes:
		for i, item := range o.Nodes {
			if err := e.checkAddNode(item); err != nil {
				err.msg = fmt.Sprintf("nodes[%d]: %s", i, err.msg)
				return err
			}
		}
	case AddEdges:
		for i, item := range o.Edges {
			if err := e.checkAddEdge(item); err != nil {
				err.msg = fmt.Sprintf("edges[%d]: %s", i, err.msg)
				return err
			}
		}
	case UpdateMetadata:
		if o.Name != nil && *o.Name == "" {
			return structuralError("updateMetadata: name cannot be empty")
		}
	case MoveNode:
		if o.Position != nil && !o.Position.Valid() {
			return structuralError("moveNode: position must have numeric x and y")
		}
	case AddNote:
		if o.Position != nil && !o.Position.Valid() {
			return structuralError("addNote: position must have numeric x and y")
		}
	}
	return e.checkTags(op)
}

func (e *Engine) checkAddNode(op AddNode) *opError {
	switch {
	case op.Node == nil && op.Spec == nil:
		return structuralError("addNode: either a node or nodeId and componentType are required")
	case op.Node != nil && op.Spec != nil:
		return structuralError("addNode: node and simplified fields are mutually exclusive")
	case op.Node != nil:
		if op.Node.ID == "" {
			return structuralError("addNode: node.id is required")
		}
		if op.Node.ComponentType == "" {
			return structuralError("addNode: node.componentType is required")
		}
		return nil
	default:
		return e.checkTags(*op.Spec)
	}
}

func (e *Engine) checkAddEdge(op AddEdge) *opError {
	switch {
	case op.Edge == nil && op.Spec == nil:
		return structuralError("addEdge: either an edge or source and target are required")
	case op.Edge != nil && op.Spec != nil:
		return structuralError("addEdge: edge and simplified fields are mutually exclusive")
	case op.Edge != nil:
		if op.Edge.Source == "" || op.Edge.Target == "" {
			return structuralError("addEdge: edge.source and edge.target are required")
		}
		return nil
	default:
		return e.checkTags(*op.Spec)
	}
}

func (e *Engine) checkTags(v any) *opError {
	err := e.structs.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return structuralError("%v", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return structuralError("%s", strings.Join(parts, "; "))
}

// normalize expands bulk operations into singular ones and simplified
// addNode operations into full nodes built from the catalog. Simplified
// nodes whose type does not resolve are left as is for pre-validation to
// report.
func normalize(ops []Operation, cat catalog.Catalog) ([]step, []Issue) {
	var steps []step
	var warnings []Issue

	for i, op := range ops {
		kind := op.Kind()
		switch o := op.(type) {
		case AddNode:
			n, w := normalizeAddNode(i, kind, o, cat)
			steps = append(steps, step{index: i, kind: kind, op: n})
			warnings = append(warnings, w...)
		case AddNodes:
			for _, item := range o.Nodes {
				n, w := normalizeAddNode(i, kind, item, cat)
				steps = append(steps, step{index: i, kind: kind, op: n})
				warnings = append(warnings, w...)
			}
		case RemoveNodes:
			for _, id := range o.NodeIDs {
				steps = append(steps, step{index: i, kind: kind, op: RemoveNode{NodeID: id, RemoveConnections: o.RemoveConnections}})
			}
		case AddEdges:
			for _, item := range o.Edges {
				steps = append(steps, step{index: i, kind: kind, op: item})
			}
		case RemoveEdges:
			for _, item := range o.Edges {
				steps = append(steps, step{index: i, kind: kind, op: item})
			}
		default:
			steps = append(steps, step{index: i, kind: kind, op: op})
		}
	}
	return steps, warnings
}

func normalizeAddNode(index int, kind Kind, op AddNode, cat catalog.Catalog) (AddNode, []Issue) {
	if op.Node != nil {
		n := op.Node.Clone()
		return AddNode{Node: &n}, nil
	}

	spec := op.Spec
	schema, err := catalog.Resolve(cat, spec.ComponentType)
	if err != nil {
		return op, nil
	}

	var warnings []Issue
	params := schema.Defaults()
	for key, value := range spec.Params {
		if _, declared := schema.Param(key); !declared {
			warnings = append(warnings, advisory(index, kind, CodeUnknownParameter, spec.NodeID, key,
				"parameter %q is not declared by component %q", key, schema.Type))
		}
		params[key] = flow.CloneValue(unwrapValue(value))
	}
	sortIssues(warnings)

	node := flow.Node{
		ID:            spec.NodeID,
		ComponentType: spec.ComponentType,
		Parameters:    params,
		OutputPorts:   schema.Ports(),
	}
	if spec.Position != nil {
		node.Position = spec.Position.Ptr()
	}
	return AddNode{Node: &node}, warnings
}

// sortIssues orders advisory issues of one operation by field for stable output
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
}
