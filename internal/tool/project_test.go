package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structuredTool() *Tool {
	t := echoTool("batch")
	t.Parameters = Object(map[string]*Schema{
		"paths":   {Type: TypeArray, Description: "Files to read"},
		"options": {Type: TypeObject, Properties: map[string]*Schema{"tags": {Type: TypeArray}}},
		"mode":    {Type: TypeString, Enum: []string{"fast", "slow"}},
	}, "paths")
	return t
}

func TestProject_Gemini(t *testing.T) {
	d := Project(structuredTool(), Gemini)

	assert.Equal(t, "OBJECT", d.Parameters.Type)
	paths := d.Parameters.Properties["paths"]
	assert.Equal(t, "ARRAY", paths.Type)
	require.NotNil(t, paths.Items)
	assert.Equal(t, "STRING", paths.Items.Type)

	tags := d.Parameters.Properties["options"].Properties["tags"]
	require.NotNil(t, tags.Items, "nested arrays need items too")
	assert.Equal(t, "STRING", tags.Items.Type)
	assert.Equal(t, []string{"fast", "slow"}, d.Parameters.Properties["mode"].Enum)
}

func TestProject_Ollama_Flattens(t *testing.T) {
	d := Project(structuredTool(), Ollama)

	for _, name := range []string{"paths", "options"} {
		p := d.Parameters.Properties[name]
		assert.Equal(t, TypeString, p.Type, name)
		assert.Contains(t, p.Description, JSONTextNote, name)
		assert.Nil(t, p.Items)
		assert.Nil(t, p.Properties)
	}
	assert.Equal(t, "Files to read "+JSONTextNote, d.Parameters.Properties["paths"].Description)
	assert.Equal(t, TypeString, d.Parameters.Properties["mode"].Type)
	assert.Equal(t, []string{"paths"}, d.Parameters.Required)
}

func TestProject_AnthropicAndOpenAI(t *testing.T) {
	for _, v := range []Vendor{Anthropic, OpenAI} {
		d := Project(structuredTool(), v)
		assert.Equal(t, TypeObject, d.Parameters.Type)
		require.NotNil(t, d.Parameters.Properties["paths"].Items, v)
		assert.Equal(t, TypeString, d.Parameters.Properties["paths"].Items.Type)
	}
}

func TestProject_IsPure(t *testing.T) {
	orig := structuredTool()
	_ = Project(orig, Gemini)
	_ = Project(orig, Ollama)

	assert.Equal(t, TypeArray, orig.Parameters.Properties["paths"].Type)
	assert.Nil(t, orig.Parameters.Properties["paths"].Items)
}

func TestProject_NilParameters(t *testing.T) {
	tl := echoTool("bare")
	tl.Parameters = nil
	d := Project(tl, Anthropic)
	assert.Equal(t, TypeObject, d.Parameters.Type)
	assert.NotNil(t, d.Parameters.Properties)
}

func TestSupportsToolChoice(t *testing.T) {
	assert.True(t, SupportsToolChoice(Anthropic, "claude-sonnet-4-5"))
	assert.True(t, SupportsToolChoice(Gemini, "gemini-2.5-flash"))
	assert.True(t, SupportsToolChoice(OpenAI, "gpt-4.1"))
	assert.False(t, SupportsToolChoice(OpenAI, "o1-mini"))
	assert.False(t, SupportsToolChoice(Ollama, "llama3.1"))
}

func TestSchemaMap(t *testing.T) {
	m := Object(map[string]*Schema{"n": {Type: TypeInteger}}, "n").Map()
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"n"}, m["required"])

	empty := (&Schema{Type: TypeObject}).Map()
	assert.Equal(t, map[string]any{}, empty["properties"])
}

func TestSchemaFromMap(t *testing.T) {
	s, err := SchemaFromMap(map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string", "minLength": 1}},
		"required":   []any{"q"},
	})
	require.NoError(t, err)
	assert.Equal(t, TypeString, s.Properties["q"].Type)
	assert.Equal(t, []string{"q"}, s.Required)
}

func TestParseVendor(t *testing.T) {
	v, err := ParseVendor("Claude")
	require.NoError(t, err)
	assert.Equal(t, Anthropic, v)
	_, err = ParseVendor("acme")
	assert.Error(t, err)
	assert.False(t, Ollama.RequiresCredential())
	assert.True(t, Gemini.RequiresCredential())
}
