package encrypteddata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer(t *testing.T) {
	s := JSONSerializer{}

	data, err := s.Marshal(map[string]any{"n": 12345678901234567, "s": "x"})
	require.NoError(t, err)

	var v any
	require.NoError(t, s.Unmarshal(data, &v))
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("12345678901234567"), m["n"], "large integers survive as json.Number")

	var b bool
	require.NoError(t, s.Unmarshal([]byte("false"), &b))
	assert.False(t, b)

	assert.Error(t, s.Unmarshal([]byte(`{"a":1} {"b":2}`), &v), "trailing data")
	assert.Error(t, s.Unmarshal([]byte(`{"a":`), &v))
	assert.Error(t, s.Unmarshal(nil, &v))
}

func TestYAMLSerializer(t *testing.T) {
	s := YAMLSerializer{}

	in := map[string]any{"list": []any{"a", 1, true}, "nested": map[string]any{"k": "v"}}
	data, err := s.Marshal(in)
	require.NoError(t, err)

	var out any
	require.NoError(t, s.Unmarshal(data, &out))
	assert.True(t, Equal(in, out))

	data, err = s.Marshal(false)
	require.NoError(t, err)
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, false, out)

	assert.Error(t, s.Unmarshal([]byte("  \n"), &out))
}

func TestYAMLSerializer_WithRecords(t *testing.T) {
	ed := newTestData(t, newTestFS(t), func(c *Config) {
		c.Serializer = YAMLSerializer{}
	})

	value := map[string]any{"hosts": []any{"a", "b"}, "port": 22}
	rec, err := ed.PrepInitialVersion("inventory", value, "alice")
	require.NoError(t, err)

	got, err := rec.Read()
	require.NoError(t, err)
	assert.True(t, Equal(value, got))
}

func TestLookupSerializer(t *testing.T) {
	for name, want := range map[string]Serializer{
		"":     JSONSerializer{},
		"json": JSONSerializer{},
		"yaml": YAMLSerializer{},
		"yml":  YAMLSerializer{},
	} {
		got, err := LookupSerializer(name)
		require.NoError(t, err)
		assert.IsType(t, want, got)
	}

	_, err := LookupSerializer("xml")
	assert.True(t, IsValidationError(err))
}
