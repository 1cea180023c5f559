package fieldpath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		item   map[string]any
		path   string
		want   any
		wantOK bool
	}{
		{
			name:   "nested",
			item:   map[string]any{"a": map[string]any{"b": "x"}},
			path:   "a.b",
			want:   "x",
			wantOK: true,
		},
		{
			name:   "top level",
			item:   map[string]any{"title": "T"},
			path:   "title",
			want:   "T",
			wantOK: true,
		},
		{
			name:   "empty path",
			item:   map[string]any{},
			path:   "",
			wantOK: false,
		},
		{
			name:   "nil item",
			item:   nil,
			path:   "a",
			wantOK: false,
		},
		{
			name:   "missing everywhere",
			item:   map[string]any{"a": map[string]any{"b": "x"}},
			path:   "a.z",
			wantOK: false,
		},
		{
			name:   "scalar mid path",
			item:   map[string]any{"a": "flat"},
			path:   "a.b",
			wantOK: false,
		},
		{
			name:   "list value",
			item:   map[string]any{"result": map[string]any{"data": []any{"x"}}},
			path:   "result.data",
			want:   []any{"x"},
			wantOK: true,
		},
		{
			name:   "explicit null is present",
			item:   map[string]any{"a": nil},
			path:   "a",
			want:   nil,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.item, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// The fallback to the top-level item is intentional: configs written for
// nested payloads keep working against flat ones.
func TestExtract_FallsBackToRootKey(t *testing.T) {
	item := map[string]any{
		"a": map[string]any{"b": "x"},
		"c": "y",
	}

	got, ok := Extract(item, "a.c")
	require.True(t, ok)
	assert.Equal(t, "y", got)

	partial := map[string]any{"data": map[string]any{}, "title": "Flat title"}
	got, ok = Extract(partial, "data.title")
	require.True(t, ok)
	assert.Equal(t, "Flat title", got)

	// The first segment has nothing to fall back to.
	_, ok = Extract(map[string]any{"title": "Flat title"}, "data.title")
	assert.False(t, ok)
}

func TestExtract_FallbackContinuesWalking(t *testing.T) {
	item := map[string]any{
		"meta": map[string]any{},
		"info": map[string]any{"author": "Ann"},
	}

	got, ok := Extract(item, "meta.info.author")
	require.True(t, ok)
	assert.Equal(t, "Ann", got)
}

func TestString(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42, "score": 1.5, "ok": true, "obj": {}, "n": null}`), &decoded))

	s, ok := String(decoded, "id")
	assert.True(t, ok)
	assert.Equal(t, "42", s)

	s, ok = String(decoded, "score")
	assert.True(t, ok)
	assert.Equal(t, "1.5", s)

	s, ok = String(decoded, "ok")
	assert.True(t, ok)
	assert.Equal(t, "true", s)

	_, ok = String(decoded, "obj")
	assert.False(t, ok)

	_, ok = String(decoded, "n")
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	item := map[string]any{"result": map[string]any{"data": []any{map[string]any{"title": "T1"}}}}

	l, ok := List(item, "result.data")
	require.True(t, ok)
	assert.Len(t, l, 1)

	_, ok = List(item, "result")
	assert.False(t, ok)
}
