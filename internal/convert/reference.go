package convert

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// ErrInvalidObjectReference is returned when a single reference points into
// a column that does not hold an object.
var ErrInvalidObjectReference = errors.New("object reference does not resolve to an object")

// ExtractReference builds a reference structure from a map of sub-attribute
// to source mapping. For many references the result is a list of maps, for a
// single reference one map. split, when not empty, is the delimiter for
// plain string values of many references.
func ExtractReference(row core.Row, sub map[string]any, many bool, split string) (any, error) {
	names := make([]string, 0, len(sub))
	for name := range sub {
		names = append(names, name)
	}
	// Map order is random; a stable order keeps string-split appends stable.
	slices.Sort(names)

	if many {
		return extractMany(row, sub, names, split)
	}
	return extractSingle(row, sub, names)
}

func extractMany(row core.Row, sub map[string]any, names []string, split string) (any, error) {
	dst := &refList{}
	for _, name := range names {
		mapping, ok := sub[name].(string)
		if !ok {
			return nil, fmt.Errorf("source mapping for %q must be a string", name)
		}
		expr := ParseSourceExpr(mapping)
		value := expr.Resolve(row)

		switch {
		case value == nil:
			continue
		case expr.IsObjectReference():
			items, ok := core.AsList(value)
			if !ok {
				items = []any{value}
			}
			for i, item := range items {
				v, _ := core.Lookup(item, expr.Attr)
				dst.at(i)[name] = v
			}
		default:
			if s, ok := value.(string); ok {
				for _, part := range splitUnique(s, split) {
					dst.append(map[string]any{name: part})
				}
				continue
			}
			items, ok := core.AsList(value)
			if !ok {
				items = []any{value}
			}
			for i, v := range items {
				dst.at(i)[name] = v
			}
		}
	}
	return dst.items, nil
}

func extractSingle(row core.Row, sub map[string]any, names []string) (any, error) {
	dst := make(map[string]any, len(names))
	for _, name := range names {
		mapping, ok := sub[name].(string)
		if !ok {
			return nil, fmt.Errorf("source mapping for %q must be a string", name)
		}
		expr := ParseSourceExpr(mapping)
		value := expr.Resolve(row)

		if expr.IsObjectReference() && value != nil {
			obj, ok := core.AsMap(value)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrInvalidObjectReference, mapping)
			}
			value, _ = core.Lookup(obj, expr.Attr)
		}
		dst[name] = value
	}
	return dst, nil
}

// refList is the accumulating output of a many reference. Values from
// different source lists are merged by index.
type refList struct {
	items []any
}

// at returns the map at index i, growing the list when it is shorter.
func (l *refList) at(i int) map[string]any {
	for len(l.items) <= i {
		l.items = append(l.items, map[string]any{})
	}
	return l.items[i].(map[string]any)
}

func (l *refList) append(m map[string]any) {
	l.items = append(l.items, m)
}

// splitUnique splits s on sep (when set) and returns the sorted distinct
// non-empty parts.
func splitUnique(s, sep string) []string {
	parts := []string{s}
	if sep != "" {
		parts = strings.Split(s, sep)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// CleanReference keeps bronwaarde and begin_geldigheid at the top level and
// moves every other field into broninfo. broninfo is omitted when empty.
func CleanReference(ref map[string]any) map[string]any {
	out := map[string]any{core.FieldSourceValue: ref[core.FieldSourceValue]}
	if v, ok := ref[core.FieldStartValidity]; ok {
		out[core.FieldStartValidity] = v
	}
	info := make(map[string]any)
	for k, v := range ref {
		if k == core.FieldSourceValue || k == core.FieldStartValidity {
			continue
		}
		info[k] = v
	}
	if len(info) > 0 {
		out[core.FieldSourceInfo] = info
	}
	return out
}

// cleanReferences applies CleanReference to a reference or every element of
// a many reference. Other values are returned unchanged.
func cleanReferences(v any) any {
	if m, ok := core.AsMap(v); ok {
		return CleanReference(m)
	}
	items, ok := core.AsList(v)
	if !ok {
		return v
	}
	out := make([]any, len(items))
	for i, item := range items {
		if m, ok := core.AsMap(item); ok {
			out[i] = CleanReference(m)
		} else {
			out[i] = item
		}
	}
	return out
}
