package flow

// Clone returns a deep copy of the document. Nil slices and maps stay nil so
// that a missing nodes array remains distinguishable from an empty one.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		out.UpdatedAt = &t
	}
	if d.Nodes != nil {
		out.Nodes = make([]Node, len(d.Nodes))
		for i := range d.Nodes {
			out.Nodes[i] = d.Nodes[i].Clone()
		}
	}
	if d.Edges != nil {
		out.Edges = make([]Edge, len(d.Edges))
		copy(out.Edges, d.Edges)
	}
	if d.Notes != nil {
		out.Notes = make([]Note, len(d.Notes))
		copy(out.Notes, d.Notes)
	}
	if d.Tags != nil {
		out.Tags = append([]string{}, d.Tags...)
	}
	out.Metadata = CloneMap(d.Metadata)
	return &out
}

// Clone returns a deep copy of the node
func (n Node) Clone() Node {
	out := n
	if n.Position != nil {
		out.Position = n.Position.Ptr()
	}
	out.Parameters = CloneMap(n.Parameters)
	if n.OutputPorts != nil {
		out.OutputPorts = make([]PortDescriptor, len(n.OutputPorts))
		for i, p := range n.OutputPorts {
			out.OutputPorts[i] = PortDescriptor{Name: p.Name}
			if p.Types != nil {
				out.OutputPorts[i].Types = append([]string{}, p.Types...)
			}
		}
	}
	return out
}

// CloneMap deep-copies a JSON-like map
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-like value. Maps and slices are copied
// recursively; anything else is returned as is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		if val == nil {
			return val
		}
		return append([]string{}, val...)
	default:
		return v
	}
}
