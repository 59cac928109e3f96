package convert

import (
	"strings"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// literalMarker starts a literal source mapping ("=value").
const literalMarker = "="

// SourceExpr is a parsed source mapping string.
type SourceExpr struct {
	Literal   string
	IsLiteral bool
	// Column is the row column the value comes from.
	Column string
	// Attr is set for object references ("column.attr"): the path inside
	// each nested object of Column.
	Attr string
}

// ParseSourceExpr parses a source mapping string.
func ParseSourceExpr(mapping string) SourceExpr {
	if strings.HasPrefix(mapping, literalMarker) {
		return SourceExpr{Literal: mapping[len(literalMarker):], IsLiteral: true}
	}
	if column, attr, ok := strings.Cut(mapping, "."); ok {
		return SourceExpr{Column: column, Attr: attr}
	}
	return SourceExpr{Column: mapping}
}

// IsObjectReference reports whether the expression points into nested objects.
func (e SourceExpr) IsObjectReference() bool {
	return e.Attr != ""
}

// Resolve returns the raw value of the expression. Object references return
// the nested column value unresolved; reference extraction resolves Attr.
func (e SourceExpr) Resolve(row core.Row) any {
	if e.IsLiteral {
		return e.Literal
	}
	return row[e.Column]
}

// ResolveValue resolves a source mapping string against a row.
func ResolveValue(row core.Row, mapping string) any {
	return ParseSourceExpr(mapping).Resolve(row)
}

// objectValues resolves Attr inside a nested object or list of objects.
// A single object yields a single value, a list yields a list.
func (e SourceExpr) objectValues(raw any) any {
	if m, ok := core.AsMap(raw); ok {
		v, _ := core.Lookup(m, e.Attr)
		return v
	}
	items, ok := core.AsList(raw)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, _ := core.Lookup(item, e.Attr)
		out = append(out, v)
	}
	return out
}
