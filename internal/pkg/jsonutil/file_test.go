package jsonutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["count"],
  "properties": {"count": {"type": "integer", "minimum": 0}}
}`

type counter struct {
	Count int `json:"count"`
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	schema, err := CompileSchema("counter.json", testSchema)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "counter.json")

	require.NoError(t, SaveFile(path, counter{Count: 3}))

	var got counter
	found, err := LoadFile(path, schema, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Count)
}

func TestLoadFileMissing(t *testing.T) {
	var got counter
	found, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"), nil, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadFileRejectsSchemaViolation(t *testing.T) {
	schema, err := CompileSchema("counter.json", testSchema)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "counter.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"count": -1}`), 0o600))

	var got counter
	found, err := LoadFile(path, schema, &got)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", Pretty(`{"a":1}`))
	assert.Equal(t, "not json", Pretty("not json"))
}
