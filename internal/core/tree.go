package core

import (
	"fmt"
	"strings"
)

// Well-known attribute names.
const (
	FieldSourceID       = "_source_id"
	FieldID             = "identificatie"
	FieldSequenceNumber = "volgnummer"
	FieldStartValidity  = "begin_geldigheid"
	FieldEndValidity    = "eind_geldigheid"
	FieldSourceValue    = "bronwaarde"
	FieldSourceInfo     = "broninfo"
)

// Row is a raw source record: column name to raw value.
type Row map[string]any

// Entity is a converted record in target format.
type Entity map[string]any

// ID returns the string form of the entity identity, or "" when absent.
func (e Entity) ID() string {
	if v, ok := e[FieldID]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if v, ok := e[FieldSourceID]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// AsMap returns v as a map when it is any of the map shaped tree nodes.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Row:
		return m, true
	case Entity:
		return m, true
	default:
		return nil, false
	}
}

// AsList returns v as a list when it is any of the list shaped tree nodes.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Lookup resolves a dot-separated path against a tree of nested maps.
// The second return value reports whether every path segment was present;
// a present key holding nil is found.
func Lookup(v any, path string) (any, bool) {
	cur := v
	for _, key := range strings.Split(path, ".") {
		m, ok := AsMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
