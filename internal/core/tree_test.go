package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	tree := Entity{
		"identificatie": "0363",
		"ligt_in_buurt": map[string]any{
			"bronwaarde": "A01a",
			"broninfo":   map[string]any{"code": "A01"},
		},
		"leeg": nil,
	}

	tests := []struct {
		name      string
		path      string
		wantValue any
		wantFound bool
	}{
		{name: "top level", path: "identificatie", wantValue: "0363", wantFound: true},
		{name: "nested", path: "ligt_in_buurt.bronwaarde", wantValue: "A01a", wantFound: true},
		{name: "deeply nested", path: "ligt_in_buurt.broninfo.code", wantValue: "A01", wantFound: true},
		{name: "present nil", path: "leeg", wantValue: nil, wantFound: true},
		{name: "missing", path: "onbekend", wantFound: false},
		{name: "missing nested", path: "ligt_in_buurt.onbekend", wantFound: false},
		{name: "through scalar", path: "identificatie.code", wantFound: false},
		{name: "through nil", path: "leeg.code", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Lookup(tree, tt.path)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestAsList(t *testing.T) {
	l, ok := AsList([]map[string]any{{"a": 1}, {"a": 2}})
	assert.True(t, ok)
	assert.Len(t, l, 2)

	_, ok = AsList("not a list")
	assert.False(t, ok)
}

func TestEntityID(t *testing.T) {
	assert.Equal(t, "1", Entity{"identificatie": 1, "_source_id": "x"}.ID())
	assert.Equal(t, "x", Entity{"_source_id": "x"}.ID())
	assert.Equal(t, "", Entity{}.ID())
}
