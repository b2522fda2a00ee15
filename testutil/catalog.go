package testutil

import (
	"github.com/c360/flowdiff/catalog"
)

// Catalog returns a fresh component catalog for tests:
//
//   - ChatInput: optional input_value/sender, output "message"
//   - ChatOutput: input_value accepting Message or Data, output "message"
//   - OpenAIModel: credential api_key, model_name with default, numeric temperature,
//     input_value and system_message inputs, output "text_output"
//   - Prompt: required template with no default, output "prompt"
//   - X: a single required parameter k with no default and no ports
func Catalog() catalog.Map {
	return catalog.NewMap(
		&catalog.Schema{
			Type: "ChatInput",
			Parameters: []catalog.ParamDef{
				{Name: "input_value", Type: "str", Default: ""},
				{Name: "sender", Type: "str", Default: "User"},
			},
			OutputPorts: []catalog.PortDef{{Name: "message", Types: []string{"Message"}}},
		},
		&catalog.Schema{
			Type: "ChatOutput",
			Parameters: []catalog.ParamDef{
				{Name: "input_value", Type: "str", InputTypes: []string{"Message", "Data"}},
				{Name: "sender", Type: "str", Default: "Machine"},
			},
			OutputPorts: []catalog.PortDef{{Name: "message", Types: []string{"Message"}}},
		},
		&catalog.Schema{
			Type: "OpenAIModel",
			Parameters: []catalog.ParamDef{
				{Name: "api_key", Type: "str", Required: true, Password: true},
				{Name: "model_name", Type: "str", Required: true, Default: "gpt-4o-mini"},
				{Name: "temperature", Type: "float", Default: 0.1},
				{Name: "input_value", Type: "str", InputTypes: []string{"Message"}},
				{Name: "system_message", Type: "str", InputTypes: []string{"Message"}},
			},
			OutputPorts: []catalog.PortDef{
				{Name: "text_output", Types: []string{"Message"}},
				{Name: "model_output", Types: []string{"LanguageModel"}},
			},
		},
		&catalog.Schema{
			Type: "Prompt",
			Parameters: []catalog.ParamDef{
				{Name: "template", Type: "prompt", Required: true},
				{Name: "variables", Type: "dict", Default: map[string]any{}},
			},
			OutputPorts: []catalog.PortDef{{Name: "prompt", Types: []string{"Message"}}},
		},
		&catalog.Schema{
			Type:       "X",
			Parameters: []catalog.ParamDef{{Name: "k", Type: "str", Required: true}},
		},
	)
}
