package diff

import (
	"github.com/c360/flowdiff/flow"
)

// Kind names an operation type. It is the "type" tag of the wire format.
type Kind string

// Operation kinds
const (
	KindAddNode        Kind = "addNode"
	KindRemoveNode     Kind = "removeNode"
	KindUpdateNode     Kind = "updateNode"
	KindMoveNode       Kind = "moveNode"
	KindAddEdge        Kind = "addEdge"
	KindRemoveEdge     Kind = "removeEdge"
	KindUpdateMetadata Kind = "updateMetadata"
	KindAddNodes       Kind = "addNodes"
	KindRemoveNodes    Kind = "removeNodes"
	KindAddEdges       Kind = "addEdges"
	KindRemoveEdges    Kind = "removeEdges"
	KindAddNote        Kind = "addNote"
)

// Operation is one edit intent. The set of implementations is closed; the
// engine switches over the concrete types below.
type Operation interface {
	Kind() Kind
	operation()
}

// AddNode inserts a node. Exactly one of Node (fully specified) or Spec
// (expanded from the catalog) is set; use AddFullNode or AddNodeFromSpec.
type AddNode struct {
	Node *flow.Node
	Spec *NodeSpec
}

// NodeSpec is the simplified form of addNode. Params override catalog
// defaults and may be wrapped as {"value": x}.
type NodeSpec struct {
	NodeID        string         `json:"nodeId" validate:"required"`
	ComponentType string         `json:"componentType" validate:"required"`
	Params        map[string]any `json:"params,omitempty"`
	Position      *flow.Position `json:"position,omitempty"`
}

// AddFullNode returns an addNode operation for a fully specified node
func AddFullNode(node flow.Node) AddNode {
	n := node.Clone()
	return AddNode{Node: &n}
}

// AddNodeFromSpec returns an addNode operation that builds the node from the catalog
func AddNodeFromSpec(spec NodeSpec) AddNode {
	return AddNode{Spec: &spec}
}

// NodeID returns the id of the node being added
func (op AddNode) NodeID() string {
	switch {
	case op.Node != nil:
		return op.Node.ID
	case op.Spec != nil:
		return op.Spec.NodeID
	default:
		return ""
	}
}

// RemoveNode deletes a node. With RemoveConnections the node's edges go with
// it; without, a node that still has edges cannot be removed.
type RemoveNode struct {
	NodeID            string `json:"nodeId" validate:"required"`
	RemoveConnections bool   `json:"removeConnections"`
}

// NewRemoveNode returns a removeNode operation that also removes the node's edges
func NewRemoveNode(nodeID string) RemoveNode {
	return RemoveNode{NodeID: nodeID, RemoveConnections: true}
}

// UpdateNode changes node parameters. Keys of Updates are parameter names,
// except "parameters" and "template", whose object values hold parameter
// updates, and "position". With Merge, object values are merged into the
// current value instead of replacing it.
type UpdateNode struct {
	NodeID  string         `json:"nodeId" validate:"required"`
	Updates map[string]any `json:"updates" validate:"required"`
	Merge   bool           `json:"merge,omitempty"`
}

// MoveNode sets a node's canvas position
type MoveNode struct {
	NodeID   string         `json:"nodeId" validate:"required"`
	Position *flow.Position `json:"position" validate:"required"`
}

// NewMoveNode returns a moveNode operation to pos
func NewMoveNode(nodeID string, pos flow.Position) MoveNode {
	return MoveNode{NodeID: nodeID, Position: &pos}
}

// AddEdge connects two nodes. Exactly one of Edge (fully specified) or Spec
// (handles resolved against the document and catalog) is set; use
// AddFullEdge or AddEdgeFromSpec.
type AddEdge struct {
	Edge *flow.Edge
	Spec *EdgeSpec
}

// EdgeSpec is the simplified form of addEdge. An empty TargetParam picks the
// target's first parameter that accepts connections.
type EdgeSpec struct {
	Source      string `json:"source" validate:"required"`
	Target      string `json:"target" validate:"required"`
	TargetParam string `json:"targetParam,omitempty"`
}

// AddFullEdge returns an addEdge operation for a fully specified edge
func AddFullEdge(edge flow.Edge) AddEdge {
	return AddEdge{Edge: &edge}
}

// AddEdgeFromSpec returns an addEdge operation with handles built by the engine
func AddEdgeFromSpec(spec EdgeSpec) AddEdge {
	return AddEdge{Spec: &spec}
}

// Endpoints returns the source and target node ids
func (op AddEdge) Endpoints() (string, string) {
	switch {
	case op.Edge != nil:
		return op.Edge.Source, op.Edge.Target
	case op.Spec != nil:
		return op.Spec.Source, op.Spec.Target
	default:
		return "", ""
	}
}

// RemoveEdge deletes every edge from Source to Target that matches the
// optional discriminators.
type RemoveEdge struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	TargetParam  string `json:"targetParam,omitempty"`
}

// UpdateMetadata changes document-level fields. Nil fields are left alone;
// Tags replaces the tag list and Metadata is merged into the existing map.
type UpdateMetadata struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AddNodes is addNode applied to each item in order
type AddNodes struct {
	Nodes []AddNode `json:"nodes" validate:"min=1"`
}

// RemoveNodes is removeNode applied to each id in order
type RemoveNodes struct {
	NodeIDs           []string `json:"nodeIds" validate:"min=1,dive,required"`
	RemoveConnections bool     `json:"removeConnections"`
}

// AddEdges is addEdge applied to each item in order
type AddEdges struct {
	Edges []AddEdge `json:"edges" validate:"min=1"`
}

// RemoveEdges is removeEdge applied to each item in order
type RemoveEdges struct {
	Edges []RemoveEdge `json:"edges" validate:"min=1,dive"`
}

// AddNote places a documentation note on the canvas. An empty ID is
// replaced by the next free "note-<n>".
type AddNote struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text" validate:"required"`
	Position *flow.Position `json:"position" validate:"required"`
	Color    string         `json:"color,omitempty"`
}

// NewAddNote returns an addNote operation with a generated id
func NewAddNote(text string, pos flow.Position) AddNote {
	return AddNote{Text: text, Position: &pos}
}

func (AddNode) Kind() Kind        { return KindAddNode }
func (RemoveNode) Kind() Kind     { return KindRemoveNode }
func (UpdateNode) Kind() Kind     { return KindUpdateNode }
func (MoveNode) Kind() Kind       { return KindMoveNode }
func (AddEdge) Kind() Kind        { return KindAddEdge }
func (RemoveEdge) Kind() Kind     { return KindRemoveEdge }
func (UpdateMetadata) Kind() Kind { return KindUpdateMetadata }
func (AddNodes) Kind() Kind       { return KindAddNodes }
func (RemoveNodes) Kind() Kind    { return KindRemoveNodes }
func (AddEdges) Kind() Kind       { return KindAddEdges }
func (RemoveEdges) Kind() Kind    { return KindRemoveEdges }
func (AddNote) Kind() Kind        { return KindAddNote }

func (AddNode) operation()        {}
func (RemoveNode) operation()     {}
func (UpdateNode) operation()     {}
func (MoveNode) operation()       {}
func (AddEdge) operation()        {}
func (RemoveEdge) operation()     {}
func (UpdateMetadata) operation() {}
func (AddNodes) operation()       {}
func (RemoveNodes) operation()    {}
func (AddEdges) operation()       {}
func (RemoveEdges) operation()    {}
func (AddNote) operation()        {}
