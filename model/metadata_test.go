package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Marshal(t *testing.T) {
	t.Run("Marshal empty metadata", func(t *testing.T) {
		m := Metadata{}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), bytes)
	})

	t.Run("Marshal document metadata with simple values", func(t *testing.T) {
		m := Metadata{
			"author":     "docs-team",
			"word_count": 1240,
			"published":  true,
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)

		// Unmarshal to verify structure
		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "docs-team", result["author"])
		assert.Equal(t, float64(1240), result["word_count"]) // JSON numbers become float64
		assert.Equal(t, true, result["published"])
	})

	t.Run("Marshal metadata with nested objects", func(t *testing.T) {
		m := Metadata{
			"revision": map[string]interface{}{
				"version": "2.4.1",
			},
			"tags": []string{"sharing", "quota", "sync"},
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Contains(t, string(bytes), "revision")
		assert.Contains(t, string(bytes), "tags")
	})

	t.Run("Marshal nil metadata", func(t *testing.T) {
		var m Metadata = nil

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("null"), bytes)
	})
}

func TestMetadata_Unmarshal(t *testing.T) {
	t.Run("Unmarshal valid JSON bytes", func(t *testing.T) {
		jsonBytes := []byte(`{"author":"docs-team","word_count":1240,"published":true}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		assert.Equal(t, "docs-team", m["author"])
		assert.Equal(t, float64(1240), m["word_count"])
		assert.Equal(t, true, m["published"])
	})

	t.Run("Unmarshal empty JSON object", func(t *testing.T) {
		jsonBytes := []byte(`{}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Unmarshal nil value", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Unmarshal Metadata directly", func(t *testing.T) {
		source := Metadata{
			"source": "handbook/sharing.md",
		}
		var m Metadata

		err := m.Unmarshal(source)

		require.NoError(t, err)
		assert.Equal(t, "handbook/sharing.md", m["source"])
	})

	t.Run("Unmarshal invalid JSON", func(t *testing.T) {
		invalidJSON := []byte(`{invalid json}`)
		var m Metadata

		err := m.Unmarshal(invalidJSON)

		require.Error(t, err)
	})

	t.Run("Unmarshal invalid type", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(12345)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "type assertion")
	})

	t.Run("Unmarshal nested structures", func(t *testing.T) {
		jsonBytes := []byte(`{
			"revision": {
				"version": "2.4.1"
			},
			"tags": ["sharing", "quota", "sync"]
		}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		revision, ok := m["revision"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "2.4.1", revision["version"])
	})
}

func TestMetadata_Value(t *testing.T) {
	t.Run("Value returns marshaled JSON", func(t *testing.T) {
		m := Metadata{
			"source": "handbook/sharing.md",
		}

		value, err := m.Value()

		require.NoError(t, err)
		bytes, ok := value.([]byte)
		require.True(t, ok)

		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "handbook/sharing.md", result["source"])
	})

	t.Run("Value handles empty metadata", func(t *testing.T) {
		m := Metadata{}

		value, err := m.Value()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), value)
	})
}

func TestMetadata_Scan(t *testing.T) {
	t.Run("Scan from JSON bytes", func(t *testing.T) {
		jsonBytes := []byte(`{"source":"handbook/sharing.md"}`)
		var m Metadata

		err := m.Scan(jsonBytes)

		require.NoError(t, err)
		assert.Equal(t, "handbook/sharing.md", m["source"])
	})

	t.Run("Scan from nil", func(t *testing.T) {
		var m Metadata

		err := m.Scan(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Scan from Metadata", func(t *testing.T) {
		source := Metadata{"source": "handbook/sharing.md"}
		var m Metadata

		err := m.Scan(source)

		require.NoError(t, err)
		assert.Equal(t, "handbook/sharing.md", m["source"])
	})
}

func TestMetadata_RoundTrip(t *testing.T) {
	t.Run("Marshal then Unmarshal preserves data", func(t *testing.T) {
		original := Metadata{
			"author":     "docs-team",
			"word_count": 1240,
			"published":  true,
			"revision": map[string]interface{}{
				"version": "2.4.1",
			},
		}

		// Marshal
		bytes, err := original.Marshal()
		require.NoError(t, err)

		// Unmarshal
		var restored Metadata
		err = restored.Unmarshal(bytes)
		require.NoError(t, err)

		// Verify
		assert.Equal(t, "docs-team", restored["author"])
		assert.Equal(t, float64(1240), restored["word_count"])
		assert.Equal(t, true, restored["published"])

		revision, ok := restored["revision"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "2.4.1", revision["version"])
	})

	t.Run("Value then Scan preserves data", func(t *testing.T) {
		original := Metadata{
			"source": "handbook/sharing.md",
		}

		// Value
		value, err := original.Value()
		require.NoError(t, err)

		// Scan
		var restored Metadata
		err = restored.Scan(value)
		require.NoError(t, err)

		// Verify
		assert.Equal(t, "handbook/sharing.md", restored["source"])
	})
}
