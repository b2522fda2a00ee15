package diff

import (
	"encoding/json"
	"fmt"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
)

// DecodeOperations decodes a JSON array of tagged operations:
//
//	[{"type": "addNode", "nodeId": "n1", "componentType": "ChatInput"},
//	 {"type": "addEdge", "source": "n1", "target": "n2"}]
//
// Decoding only checks shape; required fields are checked by the engine.
func DecodeOperations(data []byte) ([]Operation, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: operations must be a JSON array: %v", errors.ErrInvalidOperation, err),
			"diff", "DecodeOperations", "decode operation list")
	}
	return DecodeRawOperations(raws)
}

// DecodeRawOperations decodes already split operation objects
func DecodeRawOperations(raws []json.RawMessage) ([]Operation, error) {
	ops := make([]Operation, 0, len(raws))
	for i, raw := range raws {
		op, err := DecodeOperation(raw)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("operation %d: %w", i, err),
				"diff", "DecodeOperations", "decode operation")
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// DecodeOperation decodes one tagged operation object
func DecodeOperation(data []byte) (Operation, error) {
	var tag struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidOperation, err)
	}

	var op Operation
	var err error
	switch tag.Type {
	case KindAddNode:
		op, err = decodeInto[AddNode](data)
	case KindRemoveNode:
		op, err = decodeInto[RemoveNode](data)
	case KindUpdateNode:
		op, err = decodeInto[UpdateNode](data)
	case KindMoveNode:
		op, err = decodeInto[MoveNode](data)
	case KindAddEdge:
		op, err = decodeInto[AddEdge](data)
	case KindRemoveEdge:
		op, err = decodeInto[RemoveEdge](data)
	case KindUpdateMetadata:
		op, err = decodeInto[UpdateMetadata](data)
	case KindAddNodes:
		op, err = decodeInto[AddNodes](data)
	case KindRemoveNodes:
		op, err = decodeInto[RemoveNodes](data)
	case KindAddEdges:
		op, err = decodeInto[AddEdges](data)
	case KindRemoveEdges:
		op, err = decodeInto[RemoveEdges](data)
	case KindAddNote:
		op, err = decodeInto[AddNote](data)
	case "":
		return nil, fmt.Errorf("%w: missing \"type\"", errors.ErrInvalidOperation)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownOperation, tag.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrInvalidOperation, tag.Type, err)
	}
	return op, nil
}

func decodeInto[T Operation](data []byte) (Operation, error) {
	var op T
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return op, nil
}

// EncodeOperation encodes op in the tagged wire format
func EncodeOperation(op Operation) ([]byte, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, errors.WrapInvalid(err, "diff", "EncodeOperation", "marshal operation")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.WrapInvalid(err, "diff", "EncodeOperation", "reshape operation")
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	fields["type"], _ = json.Marshal(op.Kind())
	return json.Marshal(fields)
}

// EncodeOperations encodes ops as a JSON array in the tagged wire format
func EncodeOperations(ops []Operation) ([]byte, error) {
	raws := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		raw, err := EncodeOperation(op)
		if err != nil {
			return nil, err
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// MarshalJSON writes {"node": {...}} for the full form and the spec fields
// for the simplified form.
func (op AddNode) MarshalJSON() ([]byte, error) {
	if op.Node != nil {
		return json.Marshal(struct {
			Node *flow.Node `json:"node"`
		}{op.Node})
	}
	if op.Spec != nil {
		return json.Marshal(op.Spec)
	}
	return []byte("{}"), nil
}

// UnmarshalJSON reads the full form when a "node" object is present and the
// simplified form otherwise.
func (op *AddNode) UnmarshalJSON(data []byte) error {
	var full struct {
		Node *flow.Node `json:"node"`
	}
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	if full.Node != nil {
		*op = AddNode{Node: full.Node}
		return nil
	}
	var spec NodeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	*op = AddNode{Spec: &spec}
	return nil
}

// MarshalJSON writes {"edge": {...}} for the full form and the spec fields
// for the simplified form.
func (op AddEdge) MarshalJSON() ([]byte, error) {
	if op.Edge != nil {
		return json.Marshal(struct {
			Edge *flow.Edge `json:"edge"`
		}{op.Edge})
	}
	if op.Spec != nil {
		return json.Marshal(op.Spec)
	}
	return []byte("{}"), nil
}

// UnmarshalJSON reads the full form when an "edge" object is present and the
// simplified form otherwise.
func (op *AddEdge) UnmarshalJSON(data []byte) error {
	var full struct {
		Edge *flow.Edge `json:"edge"`
	}
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	if full.Edge != nil {
		*op = AddEdge{Edge: full.Edge}
		return nil
	}
	var spec EdgeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	*op = AddEdge{Spec: &spec}
	return nil
}

// UnmarshalJSON defaults removeConnections to true
func (op *RemoveNode) UnmarshalJSON(data []byte) error {
	var wire struct {
		NodeID            string `json:"nodeId"`
		RemoveConnections *bool  `json:"removeConnections"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*op = RemoveNode{NodeID: wire.NodeID, RemoveConnections: wire.RemoveConnections == nil || *wire.RemoveConnections}
	return nil
}

// UnmarshalJSON defaults removeConnections to true
func (op *RemoveNodes) UnmarshalJSON(data []byte) error {
	var wire struct {
		NodeIDs           []string `json:"nodeIds"`
		RemoveConnections *bool    `json:"removeConnections"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*op = RemoveNodes{NodeIDs: wire.NodeIDs, RemoveConnections: wire.RemoveConnections == nil || *wire.RemoveConnections}
	return nil
}
