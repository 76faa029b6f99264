package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ErrorField(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{
			name: "bare error object",
			raw:  map[string]any{"error": "object not found"},
			want: "object not found",
		},
		{
			name: "error alongside other fields",
			raw:  map[string]any{"error": "access denied", "id": "42", "name": "x"},
			want: "access denied",
		},
		{
			name: "non-string error value",
			raw:  map[string]any{"error": float64(500)},
			want: "500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(tt.raw)
			require.Equal(t, KindError, res.Kind())
			assert.Equal(t, tt.want, res.ErrMessage())
			assert.False(t, res.IsTimeout())
		})
	}
}

func TestNormalize_List(t *testing.T) {
	t.Run("length and order preserved", func(t *testing.T) {
		raw := []any{
			map[string]any{"id": "1", "name": "first"},
			map[string]any{"id": "2", "name": "second"},
			map[string]any{"id": "3", "name": "third"},
		}
		res := Normalize(raw)
		records, err := res.AsRecordList()
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, want := range []string{"first", "second", "third"} {
			name, ok := records[i].String("name")
			require.True(t, ok)
			assert.Equal(t, want, name)
		}
	})

	t.Run("wrapped elements unwrap", func(t *testing.T) {
		raw := []any{
			map[string]any{"contents": map[string]any{"id": "1"}},
			map[string]any{"id": "2"},
		}
		records, err := Normalize(raw).AsRecordList()
		require.NoError(t, err)
		require.Len(t, records, 2)
		id, _ := records[0].String("id")
		assert.Equal(t, "1", id)
		id, _ = records[1].String("id")
		assert.Equal(t, "2", id)
	})

	t.Run("contents wrapper holding a list", func(t *testing.T) {
		raw := map[string]any{"contents": []any{
			map[string]any{"id": "a"},
			map[string]any{"id": "b"},
		}}
		records, err := Normalize(raw).AsRecordList()
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("scalar elements keep their position", func(t *testing.T) {
		records, err := Normalize([]any{"x", float64(2)}).AsRecordList()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "x", records[0]["value"])
	})

	t.Run("empty list", func(t *testing.T) {
		records, err := Normalize([]any{}).AsRecordList()
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestNormalize_Record(t *testing.T) {
	t.Run("wrapped record", func(t *testing.T) {
		raw := map[string]any{"contents": map[string]any{"id": "7", "name": "doc"}}
		rec, err := Normalize(raw).AsRecord()
		require.NoError(t, err)
		id, ok := rec.String("id")
		require.True(t, ok)
		assert.Equal(t, "7", id)
	})

	t.Run("bare map is a record", func(t *testing.T) {
		rec, err := Normalize(map[string]any{"id": "9"}).AsRecord()
		require.NoError(t, err)
		assert.Equal(t, "9", rec["id"])
	})
}

func TestNormalize_Scalar(t *testing.T) {
	for _, raw := range []any{"plain text", float64(42), true, nil} {
		res := Normalize(raw)
		require.Equal(t, KindScalar, res.Kind())
		v, err := res.AsScalar()
		require.NoError(t, err)
		assert.Equal(t, raw, v)
	}
}

func TestNormalizeJSON(t *testing.T) {
	t.Run("json list", func(t *testing.T) {
		res := NormalizeJSON([]byte(`[{"id":"1"},{"id":"2"}]`))
		records, err := res.AsRecordList()
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("invalid json is an error", func(t *testing.T) {
		res := NormalizeJSON([]byte(`{not json`))
		assert.True(t, res.IsError())
	})

	t.Run("empty body is a nil scalar", func(t *testing.T) {
		v, err := NormalizeJSON(nil).AsScalar()
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestResult_Narrowing(t *testing.T) {
	rec := NewRecord(Record{"id": "1"})
	list := NewRecordList([]Record{{"id": "1"}})

	_, err := rec.AsRecordList()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected record list")

	_, err = list.AsRecord()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected record")

	_, err = rec.AsScalar()
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	res := Timeout("no response within 30s")
	assert.True(t, res.IsError())
	assert.True(t, res.IsTimeout())
	assert.Equal(t, "no response within 30s", res.ErrMessage())

	assert.False(t, NewError("remote failure").IsTimeout())
}
