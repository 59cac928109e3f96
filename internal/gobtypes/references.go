package gobtypes

import (
	"maps"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Reference is a single reference: {bronwaarde, broninfo?}.
type Reference struct {
	Value map[string]any
}

func (r Reference) Type() string { return TypeReference }
func (r Reference) IsNull() bool { return r.Value == nil }
func (r Reference) Plain() any {
	if r.Value == nil {
		return nil
	}
	return r.Value
}

// ManyReference is a list of references.
type ManyReference struct {
	tag    string
	Values []any
	Valid  bool
}

func (r ManyReference) Type() string { return r.tag }
func (r ManyReference) IsNull() bool { return !r.Valid }
func (r ManyReference) Plain() any {
	if !r.Valid {
		return nil
	}
	return r.Values
}

// newReference accepts a reference object, a source value, or a list
// holding exactly one of those as produced by force_list mappings.
func newReference(v any, _ Options) (Value, error) {
	if items, ok := core.AsList(v); ok {
		switch len(items) {
		case 0:
			return Reference{}, nil
		case 1:
			v = items[0]
		default:
			return nil, invalid(TypeReference, v, "expected a single reference")
		}
	}
	if v == nil {
		return Reference{}, nil
	}
	if m, ok := core.AsMap(v); ok {
		return Reference{Value: maps.Clone(m)}, nil
	}
	if s, ok := text(v); ok {
		return Reference{Value: map[string]any{core.FieldSourceValue: s}}, nil
	}
	if composite(v) {
		return nil, invalid(TypeReference, v, "not a reference")
	}
	return Reference{}, nil
}

func newManyReference(tag string) Constructor {
	return func(v any, _ Options) (Value, error) {
		if v == nil {
			return ManyReference{tag: tag}, nil
		}
		items, ok := core.AsList(v)
		if !ok {
			if _, isMap := core.AsMap(v); isMap {
				items = []any{v}
			} else if s, isText := text(v); isText {
				items = []any{s}
			} else {
				return nil, invalid(tag, v, "expected a list of references")
			}
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			if m, ok := core.AsMap(item); ok {
				values = append(values, maps.Clone(m))
				continue
			}
			if s, ok := text(item); ok {
				values = append(values, map[string]any{core.FieldSourceValue: s})
				continue
			}
			if item == nil {
				continue
			}
			return nil, invalid(tag, v, "list item is not a reference")
		}
		return ManyReference{tag: tag, Values: values, Valid: true}, nil
	}
}
