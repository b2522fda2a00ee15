package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
)

// ParamDef declares one configurable parameter of a component
type ParamDef struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Type        string   `json:"type" yaml:"type" validate:"required"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty"`
	Password    bool     `json:"password,omitempty" yaml:"password,omitempty"`
	List        bool     `json:"list,omitempty" yaml:"list,omitempty"`
	Advanced    bool     `json:"advanced,omitempty" yaml:"advanced,omitempty"`
	InputTypes  []string `json:"inputTypes,omitempty" yaml:"inputTypes,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// HasDefault reports whether the catalog supplies a value for an unset parameter
func (p ParamDef) HasDefault() bool {
	return p.Default != nil
}

// PortDef declares one output port of a component
type PortDef struct {
	Name  string   `json:"name" yaml:"name" validate:"required"`
	Types []string `json:"types" yaml:"types" validate:"required,min=1,dive,required"`
}

// Schema is the catalog entry for one component type. Parameters and
// OutputPorts are ordered; that order is the canonical field order of nodes
// built from the schema.
type Schema struct {
	Type        string     `json:"type" yaml:"type" validate:"required"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []ParamDef `json:"parameters" yaml:"parameters" validate:"dive"`
	OutputPorts []PortDef  `json:"outputPorts" yaml:"outputPorts" validate:"dive"`
}

// Param returns the parameter definition with the given name
func (s *Schema) Param(name string) (ParamDef, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParamDef{}, false
}

// ParamNames returns the declared parameter names in schema order
func (s *Schema) ParamNames() []string {
	names := make([]string, len(s.Parameters))
	for i, p := range s.Parameters {
		names[i] = p.Name
	}
	return names
}

// Defaults returns a fresh map holding every declared parameter. Parameters
// without a catalog default are present with a nil value.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s.Parameters))
	for _, p := range s.Parameters {
		out[p.Name] = flow.CloneValue(p.Default)
	}
	return out
}

// Ports returns the output ports as node port descriptors
func (s *Schema) Ports() []flow.PortDescriptor {
	ports := make([]flow.PortDescriptor, len(s.OutputPorts))
	for i, p := range s.OutputPorts {
		ports[i] = flow.PortDescriptor{Name: p.Name, Types: append([]string{}, p.Types...)}
	}
	return ports
}

// Catalog resolves component type names to schemas. Implementations must be
// safe for concurrent reads and must not be mutated while in use.
type Catalog interface {
	Lookup(componentType string) (*Schema, bool)
}

// Lister is implemented by catalogs that can enumerate their component types.
// It is used for nearest-name suggestions.
type Lister interface {
	Names() []string
}

// Map is an in-memory catalog keyed by component type
type Map map[string]*Schema

// NewMap builds a Map from schemas. Later schemas replace earlier ones with the same type.
func NewMap(schemas ...*Schema) Map {
	m := make(Map, len(schemas))
	for _, s := range schemas {
		m[s.Type] = s
	}
	return m
}

// Lookup implements Catalog
func (m Map) Lookup(componentType string) (*Schema, bool) {
	s, ok := m[componentType]
	return s, ok
}

// Names returns the component types in lexical order
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownComponentError reports a component type that does not resolve in the catalog
type UnknownComponentError struct {
	Type       string
	Suggestion string
}

func (e *UnknownComponentError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown component type %q (did you mean %q?)", e.Type, e.Suggestion)
	}
	return fmt.Sprintf("unknown component type %q", e.Type)
}

// Is lets errors.Is match ErrUnknownComponent
func (e *UnknownComponentError) Is(target error) bool {
	return target == errors.ErrUnknownComponent
}

// Resolve looks up componentType, returning an *UnknownComponentError with a
// nearest-name suggestion when it is not in the catalog.
func Resolve(cat Catalog, componentType string) (*Schema, error) {
	if cat != nil {
		if s, ok := cat.Lookup(componentType); ok && s != nil {
			return s, nil
		}
	}
	err := &UnknownComponentError{Type: componentType}
	if lister, ok := cat.(Lister); ok {
		err.Suggestion = Nearest(componentType, lister.Names())
	}
	return nil, err
}

// Shape is the runtime value shape a declared parameter type maps to
type Shape string

// Value shapes
const (
	ShapeString  Shape = "string"
	ShapeNumber  Shape = "number"
	ShapeBoolean Shape = "boolean"
	ShapeObject  Shape = "object"
	ShapeArray   Shape = "array"
	ShapeAny     Shape = "any"
)

// Shape returns the runtime shape values of this parameter must have.
// Unrecognized declared types are unchecked.
func (p ParamDef) Shape() Shape {
	if p.List {
		return ShapeArray
	}
	switch strings.ToLower(p.Type) {
	case "str", "string", "text", "code", "prompt", "file", "password", "multiline":
		return ShapeString
	case "int", "float", "number", "integer", "slider":
		return ShapeNumber
	case "bool", "boolean":
		return ShapeBoolean
	case "dict", "nesteddict", "object", "json":
		return ShapeObject
	case "list", "array", "table":
		return ShapeArray
	default:
		return ShapeAny
	}
}

var credentialMarkers = []string{"api_key", "apikey", "api_token", "access_token", "secret", "credential"}

// IsCredentialSlot reports whether p is a password field named like an API
// credential. Such fields may be injected out-of-band, so leaving them unset
// is only advisory.
func (p ParamDef) IsCredentialSlot() bool {
	if !p.Password {
		return false
	}
	name := strings.ToLower(p.Name)
	for _, marker := range credentialMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
