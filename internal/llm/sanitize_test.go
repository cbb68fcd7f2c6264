package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObjectPlain(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, ExtractJSONObject(`{"a": 1}`))
}

func TestExtractJSONObjectWithFences(t *testing.T) {
	in := "```json\n{\"intent\": \"document_search\", \"confidence\": 0.8}\n```"
	out := ExtractJSONObject(in)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "document_search", parsed["intent"])
}

func TestExtractJSONObjectWithProse(t *testing.T) {
	in := `Sure! Here is the classification you asked for:
{"intent": "comparison", "confidence": 0.9}
Let me know if you need anything else.`
	assert.Equal(t, `{"intent": "comparison", "confidence": 0.9}`, ExtractJSONObject(in))
}

func TestExtractJSONObjectNested(t *testing.T) {
	in := `{"outer": {"inner": [1, 2, {"deep": true}]}, "b": 2}`
	assert.Equal(t, in, ExtractJSONObject(in))
}

func TestExtractJSONObjectBracesInStrings(t *testing.T) {
	in := `{"text": "a } inside and { another", "n": 1}`
	assert.Equal(t, in, ExtractJSONObject(in))

	escaped := `{"text": "quote \" then } brace", "n": 2}`
	assert.Equal(t, escaped, ExtractJSONObject(escaped))
}

func TestExtractJSONObjectNoObject(t *testing.T) {
	assert.Empty(t, ExtractJSONObject("no json here"))
	assert.Empty(t, ExtractJSONObject(""))
	assert.Empty(t, ExtractJSONObject(`{"never": "closed"`))
}

func TestExtractJSONObjectTakesFirst(t *testing.T) {
	in := `{"first": 1} {"second": 2}`
	assert.Equal(t, `{"first": 1}`, ExtractJSONObject(in))
}
