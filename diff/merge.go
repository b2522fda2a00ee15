package diff

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/c360/flowdiff/flow"
)

// ValueKind classifies a JSON-like value for merging
type ValueKind int

// Value kinds
const (
	ValueNull ValueKind = iota
	ValueScalar
	ValueObject
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueScalar:
		return "scalar"
	case ValueObject:
		return "object"
	case ValueList:
		return "list"
	default:
		return "unknown"
	}
}

// KindOf returns the merge kind of v
func KindOf(v any) ValueKind {
	switch v.(type) {
	case nil:
		return ValueNull
	case map[string]any:
		return ValueObject
	case []any, []string:
		return ValueList
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map:
		return ValueObject
	case reflect.Slice, reflect.Array:
		return ValueList
	default:
		return ValueScalar
	}
}

// Anomaly reports a merge that replaced a value of a different kind
type Anomaly struct {
	Path     string
	Existing ValueKind
	Incoming ValueKind
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s replaced by %s", a.Path, a.Existing, a.Incoming)
}

// Merge combines incoming into existing and returns the result without
// modifying either input. Objects merge key by key, recursively; scalars and
// lists are replaced. When both sides are non-null and of different kinds the
// incoming value wins and an Anomaly is reported. path prefixes anomaly paths.
func Merge(path string, existing, incoming any) (any, []Anomaly) {
	ek, ik := KindOf(existing), KindOf(incoming)

	if ek == ValueObject && ik == ValueObject {
		dst, okDst := existing.(map[string]any)
		src, okSrc := incoming.(map[string]any)
		if okDst && okSrc {
			return mergeObjects(path, dst, src)
		}
	}

	var anomalies []Anomaly
	if ek != ValueNull && ik != ValueNull && ek != ik {
		anomalies = append(anomalies, Anomaly{Path: path, Existing: ek, Incoming: ik})
	}
	return flow.CloneValue(incoming), anomalies
}

// MergeMaps merges incoming into a copy of existing
func MergeMaps(path string, existing, incoming map[string]any) (map[string]any, []Anomaly) {
	if existing == nil {
		return flow.CloneMap(incoming), nil
	}
	return mergeObjects(path, existing, incoming)
}

func mergeObjects(path string, dst, src map[string]any) (map[string]any, []Anomaly) {
	out := flow.CloneMap(dst)

	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var anomalies []Anomaly
	for _, k := range keys {
		child := k
		if path != "" {
			child = path + "." + k
		}
		merged, found := Merge(child, out[k], src[k])
		out[k] = merged
		anomalies = append(anomalies, found...)
	}
	return out, anomalies
}

// unwrapValue turns {"value": x} into x. Other values are returned unchanged.
func unwrapValue(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if inner, ok := m["value"]; ok {
			return inner
		}
	}
	return v
}
