package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/flowdiff/errors"
)

//go:embed catalog.schema.json
var metaSchema []byte

var (
	metaSchemaLoader = gojsonschema.NewBytesLoader(metaSchema)
	validate         = validator.New()
)

// File is the on-disk catalog document
type File struct {
	Version    string    `json:"version,omitempty"`
	Components []*Schema `json:"components" validate:"dive,required"`
}

// LoadFile reads a catalog from a YAML or JSON file
func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrCatalogUnavailable, err),
			"catalog", "LoadFile", "read catalog file")
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return ParseYAML(data)
	}
	return ParseJSON(data)
}

// ParseYAML parses a YAML catalog document
func ParseYAML(data []byte) (Map, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(err, "catalog", "ParseYAML", "decode YAML")
	}
	// Re-encode so YAML and JSON catalogs share one validation path and
	// defaults end up with JSON value types.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "catalog", "ParseYAML", "convert YAML to JSON")
	}
	return ParseJSON(jsonData)
}

// ParseJSON parses a JSON catalog document
func ParseJSON(data []byte) (Map, error) {
	result, err := gojsonschema.Validate(metaSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.WrapInvalid(err, "catalog", "ParseJSON", "meta-schema validation")
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("catalog does not match meta-schema: %s", strings.Join(msgs, "; ")),
			"catalog", "ParseJSON", "meta-schema validation")
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapInvalid(err, "catalog", "ParseJSON", "decode catalog")
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return NewMap(file.Components...), nil
}

// Validate checks struct constraints and uniqueness of component types,
// parameter names and port names.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return errors.WrapInvalid(err, "catalog", "Validate", "struct validation")
	}

	types := make(map[string]bool, len(f.Components))
	for _, c := range f.Components {
		if types[c.Type] {
			return errors.WrapInvalid(fmt.Errorf("duplicate component type %q", c.Type),
				"catalog", "Validate", "component uniqueness")
		}
		types[c.Type] = true

		params := make(map[string]bool, len(c.Parameters))
		for _, p := range c.Parameters {
			if params[p.Name] {
				return errors.WrapInvalid(fmt.Errorf("component %q declares parameter %q twice", c.Type, p.Name),
					"catalog", "Validate", "parameter uniqueness")
			}
			params[p.Name] = true
		}

		ports := make(map[string]bool, len(c.OutputPorts))
		for _, p := range c.OutputPorts {
			if ports[p.Name] {
				return errors.WrapInvalid(fmt.Errorf("component %q declares output port %q twice", c.Type, p.Name),
					"catalog", "Validate", "port uniqueness")
			}
			ports[p.Name] = true
		}
	}
	return nil
}
