package convert

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/gobtypes"
)

// FieldExtractor extracts one target attribute from a row.
type FieldExtractor struct {
	Name string
	Type string

	expr    SourceExpr
	sub     map[string]any
	many    bool
	split   string
	filters []Filter
	opts    gobtypes.Options
}

// NewFieldExtractor compiles the mapping of one attribute.
func NewFieldExtractor(name string, m core.AttributeMapping) (*FieldExtractor, error) {
	if !gobtypes.Known(m.Type) {
		return nil, fmt.Errorf("attribute %s: %w: %s", name, gobtypes.ErrUnknownType, m.Type)
	}
	filters, err := compileFilters(m.Filters)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", name, err)
	}

	isRef := gobtypes.IsReference(m.Type) || gobtypes.IsManyReference(m.Type)
	f := &FieldExtractor{
		Name:    name,
		Type:    m.Type,
		many:    gobtypes.IsManyReference(m.Type) || m.ForceList,
		filters: filters,
		opts:    gobtypes.Options(maps.Clone(m.Options)),
	}
	if format, ok := core.AsMap(m.Options["format"]); ok {
		if s, ok := format["split"].(string); ok {
			f.split = s
		}
	}

	switch sm := m.SourceMapping.(type) {
	case string:
		if isRef {
			// A plain mapping on a reference type is its bronwaarde.
			f.sub = map[string]any{core.FieldSourceValue: sm}
		} else {
			f.expr = ParseSourceExpr(sm)
		}
	case map[string]any:
		f.sub = sm
	default:
		return nil, fmt.Errorf("attribute %s: unsupported source_mapping %T", name, m.SourceMapping)
	}
	return f, nil
}

// IsReference reports whether the attribute holds a reference structure.
func (f *FieldExtractor) IsReference() bool {
	return gobtypes.IsReference(f.Type) || gobtypes.IsManyReference(f.Type)
}

// Resolve returns the raw value of the attribute after reference extraction,
// reference cleaning and filters, before type construction.
func (f *FieldExtractor) Resolve(row core.Row) (any, error) {
	var v any
	if f.sub != nil {
		ref, err := ExtractReference(row, f.sub, f.many, f.split)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", f.Name, err)
		}
		v = ref
	} else {
		v = f.expr.Resolve(row)
		if f.expr.IsObjectReference() && v != nil {
			v = f.expr.objectValues(v)
		}
	}

	if f.IsReference() && v != nil {
		v = cleanReferences(v)
	}
	return applyFilters(v, f.filters), nil
}

// Extract resolves the attribute and constructs its typed value. A
// construction failure returns the null value of the type together with the
// error; the caller decides how to report it.
func (f *FieldExtractor) Extract(row core.Row) (gobtypes.Value, error) {
	v, err := f.Resolve(row)
	if err != nil {
		return nil, err
	}
	value, err := gobtypes.New(f.Type, numericText(v), f.opts)
	if err != nil {
		return gobtypes.Null(f.Type), err
	}
	return value, nil
}

// numericText renders numbers as text before construction so decimals are
// never parsed through a float.
func numericText(v any) any {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		dv, err := t.Value()
		if err != nil || dv == nil {
			return nil
		}
		return fmt.Sprint(dv)
	default:
		return v
	}
}
