package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
)

func TestEncode_Canonical(t *testing.T) {
	src := Source{DataType: "ChatInput", ID: "a", Name: "message", OutputTypes: []string{"Message"}}
	assert.Equal(t, "{œdataTypeœ:œChatInputœ,œidœ:œaœ,œnameœ:œmessageœ,œoutput_typesœ:[œMessageœ]}", src.Encode())

	tgt := Target{FieldName: "input_value", ID: "b", InputTypes: []string{"Message"}, Type: "str"}
	assert.Equal(t, "{œfieldNameœ:œinput_valueœ,œidœ:œbœ,œinputTypesœ:[œMessageœ],œtypeœ:œstrœ}", tgt.Encode())
}

func TestEncode_SortsMapKeysAndKeepsHTML(t *testing.T) {
	out, err := Encode(map[string]any{"z": 1, "a": map[string]any{"y": "<b>", "b": true}})
	require.NoError(t, err)
	assert.Equal(t, "{œaœ:{œbœ:true,œyœ:œ<b>œ},œzœ:1}", out)
	assert.NotContains(t, out, `"`)
}

func TestEncode_NilSlicesBecomeEmpty(t *testing.T) {
	assert.Contains(t, Source{ID: "a"}.Encode(), "œoutput_typesœ:[]")
	assert.Contains(t, Target{ID: "a"}.Encode(), "œinputTypesœ:[]")
}

func TestDecode_RoundTripAndRawQuotes(t *testing.T) {
	want := Target{FieldName: "f", ID: "n", InputTypes: []string{"Message", "Data"}, Type: "str"}

	got, err := DecodeTarget(want.Encode())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw := `{"fieldName":"f","id":"n","inputTypes":["Message","Data"],"type":"str"}`
	got, err = DecodeTarget(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	src := Source{DataType: "X", ID: "n", Name: `quo"te`, OutputTypes: []string{"Message"}}
	decoded, err := DecodeSource(src.Encode())
	require.NoError(t, err)
	assert.Equal(t, src, decoded)
}

func TestEqual(t *testing.T) {
	stored := Target{FieldName: "input_value", ID: "b", InputTypes: []string{"Message"}, Type: "str"}.Encode()

	tests := []struct {
		name  string
		other string
		want  bool
	}{
		{"identical", stored, true},
		{"raw quotes", `{"fieldName":"input_value","id":"b","inputTypes":["Message"],"type":"str"}`, true},
		{"key order", `{"type":"str","id":"b","fieldName":"input_value","inputTypes":["Message"]}`, true},
		{"different field", Target{FieldName: "system_message", ID: "b", InputTypes: []string{"Message"}, Type: "str"}.Encode(), false},
		{"not a handle", "input_value", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(stored, tt.other))
			assert.Equal(t, tt.want, Equal(tt.other, stored))
		})
	}

	canonical, err := Canonical(`{"id":"b","fieldName":"input_value","inputTypes":["Message"],"type":"str"}`)
	require.NoError(t, err)
	assert.Equal(t, stored, canonical)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := DecodeSource("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = DecodeSource("{œidœ:")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func testSchemas() (*catalog.Schema, *catalog.Schema) {
	src := &catalog.Schema{
		Type:        "ChatInput",
		OutputPorts: []catalog.PortDef{{Name: "message", Types: []string{"Message"}}},
	}
	dst := &catalog.Schema{
		Type: "OpenAIModel",
		Parameters: []catalog.ParamDef{
			{Name: "api_key", Type: "str", Password: true},
			{Name: "input_value", Type: "str", InputTypes: []string{"Message"}},
			{Name: "system_message", Type: "str", InputTypes: []string{"Message", "Text"}},
		},
	}
	return src, dst
}

func TestSourceFor(t *testing.T) {
	srcSchema, _ := testSchemas()
	doc := &flow.Document{Nodes: []flow.Node{
		{ID: "a", ComponentType: "ChatInput"},
		{ID: "b", ComponentType: "Unknown", OutputPorts: []flow.PortDescriptor{{Name: "data", Types: []string{"Data"}}}},
		{ID: "c", ComponentType: "Unknown"},
	}}

	h := SourceFor(doc, &doc.Nodes[0], srcSchema)
	s, err := DecodeSource(h)
	require.NoError(t, err)
	assert.Equal(t, Source{DataType: "ChatInput", ID: "a", Name: "message", OutputTypes: []string{"Message"}}, s)

	s, err = DecodeSource(SourceFor(doc, &doc.Nodes[1], nil))
	require.NoError(t, err)
	assert.Equal(t, "data", s.Name)

	s, err = DecodeSource(SourceFor(doc, &doc.Nodes[2], nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultOutputName, s.Name)
	assert.Equal(t, DefaultTypes, s.OutputTypes)

	// An existing edge from the same node wins over the catalog.
	doc.Edges = []flow.Edge{{ID: "e", Source: "a", Target: "c", SourceHandle: "existing", TargetHandle: "t"}}
	assert.Equal(t, "existing", SourceFor(doc, &doc.Nodes[0], srcSchema))
}

func TestTargetFor(t *testing.T) {
	_, dstSchema := testSchemas()
	doc := &flow.Document{Nodes: []flow.Node{
		{ID: "a", ComponentType: "ChatInput"},
		{ID: "b", ComponentType: "OpenAIModel"},
	}}
	node := &doc.Nodes[1]

	tgt, err := DecodeTarget(TargetFor(doc, node, "system_message", dstSchema))
	require.NoError(t, err)
	assert.Equal(t, Target{FieldName: "system_message", ID: "b", InputTypes: []string{"Message", "Text"}, Type: "str"}, tgt)

	tgt, err = DecodeTarget(TargetFor(doc, node, "undeclared", dstSchema))
	require.NoError(t, err)
	assert.Equal(t, DefaultFieldType, tgt.Type)
	assert.Equal(t, DefaultTypes, tgt.InputTypes)

	existing := Target{FieldName: "input_value", ID: "b", InputTypes: []string{"Custom"}, Type: "str"}.Encode()
	doc.Edges = []flow.Edge{{ID: "e", Source: "a", Target: "b", SourceHandle: "s", TargetHandle: existing}}
	assert.Equal(t, existing, TargetFor(doc, node, "input_value", dstSchema))
	assert.NotEqual(t, existing, TargetFor(doc, node, "system_message", dstSchema))
}

func TestTargetField(t *testing.T) {
	_, dstSchema := testSchemas()
	assert.Equal(t, "explicit", TargetField(dstSchema, "explicit"))
	assert.Equal(t, "input_value", TargetField(dstSchema, ""))
	assert.Equal(t, DefaultFieldName, TargetField(&catalog.Schema{Type: "X"}, ""))
	assert.Equal(t, DefaultFieldName, TargetField(nil, ""))
}

func TestEdgeID(t *testing.T) {
	assert.Equal(t, "edge__aS-bT", EdgeID("a", "S", "b", "T"))
}
