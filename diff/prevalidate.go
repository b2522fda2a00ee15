package diff

import (
	stderrors "errors"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/handle"
)

// shadow tracks node and edge identity through a batch without touching the
// document. Each checked step advances it, so later operations see the ids
// earlier operations add or remove.
type shadow struct {
	cat   catalog.Catalog
	nodes map[string]string
	edges []shadowEdge
	notes map[string]bool
}

type shadowEdge struct {
	source       string
	target       string
	field        string
	sourceHandle string
	targetHandle string
}

// sameWiring reports whether two edges occupy the same input. Handles are
// compared when both are known, otherwise the decoded field names.
func (a shadowEdge) sameWiring(b shadowEdge) bool {
	if a.source != b.source || a.target != b.target {
		return false
	}
	if a.targetHandle != "" && b.targetHandle != "" {
		return handle.Equal(a.targetHandle, b.targetHandle)
	}
	return a.field != "" && a.field == b.field
}

func newShadow(doc *flow.Document, cat catalog.Catalog) *shadow {
	s := &shadow{
		cat:   cat,
		nodes: make(map[string]string, len(doc.Nodes)),
		edges: make([]shadowEdge, 0, len(doc.Edges)),
		notes: make(map[string]bool, len(doc.Notes)),
	}
	for _, n := range doc.Nodes {
		s.nodes[n.ID] = n.ComponentType
	}
	for _, e := range doc.Edges {
		s.edges = append(s.edges, shadowEdge{
			source:       e.Source,
			target:       e.Target,
			field:        fieldOf(e.TargetHandle),
			sourceHandle: e.SourceHandle,
			targetHandle: e.TargetHandle,
		})
	}
	for _, n := range doc.Notes {
		s.notes[n.ID] = true
	}
	return s
}

// fieldOf returns the field name encoded in a target handle, or "" when the
// handle does not decode.
func fieldOf(targetHandle string) string {
	if targetHandle == "" {
		return ""
	}
	t, err := handle.DecodeTarget(targetHandle)
	if err != nil {
		return ""
	}
	return t.FieldName
}

// check reports whether op can run against the shadow state and advances it.
// Warnings are advisory findings that never block.
func (s *shadow) check(st step) ([]Issue, *opError) {
	switch op := st.op.(type) {
	case AddNode:
		return nil, s.addNode(op)
	case RemoveNode:
		return nil, s.removeNode(op)
	case UpdateNode:
		return s.updateNode(st, op)
	case MoveNode:
		if _, ok := s.nodes[op.NodeID]; !ok {
			return nil, nodeNotFound(op.NodeID)
		}
	case AddEdge:
		return nil, s.addEdge(op)
	case RemoveEdge:
		return nil, s.removeEdge(op)
	case AddNote:
		if op.ID != "" {
			if s.notes[op.ID] {
				return nil, referenceError(CodeNoteExists, "", "note %q already exists", op.ID)
			}
			s.notes[op.ID] = true
		}
	}
	return nil, nil
}

func nodeNotFound(id string) *opError {
	return referenceError(CodeNodeNotFound, id, "node %q not found", id)
}

func unknownComponent(nodeID string, err error) *opError {
	e := referenceError(CodeUnknownComponent, nodeID, "%v", err)
	e.field = "componentType"
	var uc *catalog.UnknownComponentError
	if stderrors.As(err, &uc) && uc.Suggestion != "" {
		e = e.withFix("use component type %q", uc.Suggestion)
	}
	return e
}

func (s *shadow) addNode(op AddNode) *opError {
	id := op.NodeID()
	if _, exists := s.nodes[id]; exists {
		return referenceError(CodeNodeExists, id, "node %q already exists", id)
	}

	componentType := ""
	switch {
	case op.Node != nil:
		componentType = op.Node.ComponentType
	case op.Spec != nil:
		componentType = op.Spec.ComponentType
		if _, err := catalog.Resolve(s.cat, componentType); err != nil {
			return unknownComponent(id, err)
		}
	}
	s.nodes[id] = componentType
	return nil
}

func (s *shadow) removeNode(op RemoveNode) *opError {
	if _, ok := s.nodes[op.NodeID]; !ok {
		return nodeNotFound(op.NodeID)
	}

	kept := s.edges[:0:0]
	connected := 0
	for _, e := range s.edges {
		if e.source == op.NodeID || e.target == op.NodeID {
			connected++
			continue
		}
		kept = append(kept, e)
	}
	if connected > 0 && !op.RemoveConnections {
		return referenceError(CodeHasConnections, op.NodeID,
			"node %q has %d connection(s); set removeConnections to remove them", op.NodeID, connected).
			withFix("set removeConnections to true")
	}

	delete(s.nodes, op.NodeID)
	s.edges = kept
	return nil
}

func (s *shadow) updateNode(st step, op UpdateNode) ([]Issue, *opError) {
	componentType, ok := s.nodes[op.NodeID]
	if !ok {
		return nil, nodeNotFound(op.NodeID)
	}
	schema, err := catalog.Resolve(s.cat, componentType)
	if err != nil {
		// the handler reports unresolvable components
		return nil, nil
	}

	var warnings []Issue
	for _, key := range updatedParams(op.Updates) {
		if _, declared := schema.Param(key); !declared {
			warnings = append(warnings, advisory(st.index, st.kind, CodeUnknownParameter, op.NodeID, key,
				"parameter %q is not declared by component %q", key, componentType))
		}
	}
	return warnings, nil
}

func (s *shadow) addEdge(op AddEdge) *opError {
	source, target := op.Endpoints()
	if _, ok := s.nodes[source]; !ok {
		return referenceError(CodeNodeNotFound, source, "source node %q not found", source)
	}
	if _, ok := s.nodes[target]; !ok {
		return referenceError(CodeNodeNotFound, target, "target node %q not found", target)
	}
	if source == target {
		return referenceError(CodeSelfLoop, source, "edge from %q to itself is not allowed", source)
	}

	candidate := shadowEdge{source: source, target: target}
	if op.Edge != nil {
		candidate.sourceHandle = op.Edge.SourceHandle
		candidate.targetHandle = op.Edge.TargetHandle
		candidate.field = fieldOf(op.Edge.TargetHandle)
	} else {
		var schema *catalog.Schema
		if resolved, err := catalog.Resolve(s.cat, s.nodes[target]); err == nil {
			schema = resolved
		}
		candidate.field = handle.TargetField(schema, op.Spec.TargetParam)
	}

	for _, e := range s.edges {
		if e.sameWiring(candidate) {
			err := referenceError(CodeEdgeExists, target, "edge from %q to %q already exists", source, target)
			err.field = candidate.field
			return err
		}
	}
	s.edges = append(s.edges, candidate)
	return nil
}

func (s *shadow) removeEdge(op RemoveEdge) *opError {
	kept := s.edges[:0:0]
	removed := 0
	for _, e := range s.edges {
		if e.source == op.Source && e.target == op.Target &&
			shadowHandleMatches(op.SourceHandle, e.sourceHandle) &&
			shadowHandleMatches(op.TargetHandle, e.targetHandle) &&
			shadowMatches(op.TargetParam, e.field) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return edgeNotFound(op)
	}
	s.edges = kept
	return nil
}

// shadowMatches compares a discriminator against a shadow value. Values the
// shadow cannot know yet match any discriminator.
func shadowMatches(want, have string) bool {
	return want == "" || have == "" || want == have
}

func shadowHandleMatches(want, have string) bool {
	return want == "" || have == "" || handle.Equal(want, have)
}

func edgeNotFound(op RemoveEdge) *opError {
	return referenceError(CodeEdgeNotFound, op.Target, "no edge from %q to %q matches", op.Source, op.Target)
}
