package gobtypes

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// composite reports whether v is a list or object tree.
func composite(v any) bool {
	if _, ok := core.AsList(v); ok {
		return true
	}
	_, ok := core.AsMap(v)
	return ok
}

// numericRegex validates a decimal string after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// String is a nullable text value.
type String struct {
	Value string
	Valid bool
}

func (s String) Type() string { return TypeString }
func (s String) IsNull() bool { return !s.Valid }
func (s String) Plain() any {
	if !s.Valid {
		return nil
	}
	return s.Value
}

func newString(v any, _ Options) (Value, error) {
	s, ok := text(v)
	if !ok {
		return String{}, nil
	}
	return String{Value: s, Valid: true}, nil
}

// Character is a single character text value.
type Character struct {
	String
}

func (c Character) Type() string { return TypeCharacter }

func newCharacter(v any, _ Options) (Value, error) {
	s, ok := text(v)
	if !ok {
		return Character{}, nil
	}
	if utf8.RuneCountInString(s) > 1 {
		return nil, invalid(TypeCharacter, v, "more than one character")
	}
	return Character{String{Value: s, Valid: true}}, nil
}

// Integer is a nullable whole number.
type Integer struct {
	tag   string
	Value int64
	Valid bool
}

func (i Integer) Type() string { return i.tag }
func (i Integer) IsNull() bool { return !i.Valid }
func (i Integer) Plain() any {
	if !i.Valid {
		return nil
	}
	return i.Value
}

func newInteger(tag string) Constructor {
	return func(v any, _ Options) (Value, error) {
		switch n := v.(type) {
		case nil:
			return Integer{tag: tag}, nil
		case int:
			return Integer{tag: tag, Value: int64(n), Valid: true}, nil
		case int32:
			return Integer{tag: tag, Value: int64(n), Valid: true}, nil
		case int64:
			return Integer{tag: tag, Value: n, Valid: true}, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, invalid(tag, v, "not a whole number")
			}
			return Integer{tag: tag, Value: int64(n), Valid: true}, nil
		}
		s, ok := text(v)
		if !ok {
			return Integer{tag: tag}, nil
		}
		// Decimal strings of whole numbers ("12.0") come from numeric columns.
		if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" {
			s = s[:i]
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, invalid(tag, v, "not an integer")
		}
		return Integer{tag: tag, Value: n, Valid: true}, nil
	}
}

// Decimal is a nullable decimal number backed by pgtype.Numeric so that the
// source representation is kept exactly until a plain value is requested.
type Decimal struct {
	Numeric   pgtype.Numeric
	Precision int
}

func (d Decimal) Type() string { return TypeDecimal }
func (d Decimal) IsNull() bool { return !d.Numeric.Valid }
func (d Decimal) Plain() any {
	if !d.Numeric.Valid {
		return nil
	}
	f, err := d.Numeric.Float64Value()
	if err != nil || !f.Valid {
		return nil
	}
	if d.Precision > 0 {
		pow := math.Pow10(d.Precision)
		return math.Round(f.Float64*pow) / pow
	}
	return f.Float64
}

func newDecimal(v any, opts Options) (Value, error) {
	prec, _ := opts.Int("precision")
	s, ok := text(v)
	if !ok {
		return Decimal{Precision: prec}, nil
	}
	if sep := opts.String("decimal_separator"); sep != "" && sep != "." {
		s = strings.Replace(s, sep, ".", 1)
	}
	if !numericRegex.MatchString(s) {
		return nil, invalid(TypeDecimal, v, "not a decimal")
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return nil, invalid(TypeDecimal, v, err.Error())
	}
	return Decimal{Numeric: n, Precision: prec}, nil
}

// Boolean is a nullable boolean.
type Boolean struct {
	Value bool
	Valid bool
}

func (b Boolean) Type() string { return TypeBoolean }
func (b Boolean) IsNull() bool { return !b.Valid }
func (b Boolean) Plain() any {
	if !b.Valid {
		return nil
	}
	return b.Value
}

func newBoolean(v any, opts Options) (Value, error) {
	if b, ok := v.(bool); ok {
		return Boolean{Value: b, Valid: true}, nil
	}
	s, ok := text(v)
	if !ok {
		return Boolean{}, nil
	}
	// A two letter format lists the source encoding of true then false.
	if format := opts.String("format"); len(format) == 2 {
		switch strings.ToUpper(s) {
		case format[:1]:
			return Boolean{Value: true, Valid: true}, nil
		case format[1:]:
			return Boolean{Value: false, Valid: true}, nil
		default:
			return nil, invalid(TypeBoolean, v, "expected one of "+format)
		}
	}
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1", "j", "ja":
		return Boolean{Value: true, Valid: true}, nil
	case "false", "f", "no", "n", "0", "nee":
		return Boolean{Value: false, Valid: true}, nil
	default:
		return nil, invalid(TypeBoolean, v, "not a boolean")
	}
}

// JSON holds an arbitrary decoded JSON tree.
type JSON struct {
	Value any
}

func (j JSON) Type() string { return TypeJSON }
func (j JSON) IsNull() bool { return j.Value == nil }
func (j JSON) Plain() any   { return j.Value }

func newJSON(v any, _ Options) (Value, error) {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return JSON{}, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, invalid(TypeJSON, v, err.Error())
		}
		return JSON{Value: decoded}, nil
	}
	return JSON{Value: v}, nil
}

// Geometry holds a WKT geometry.
type Geometry struct {
	tag   string
	WKT   string
	Valid bool
}

func (g Geometry) Type() string { return g.tag }
func (g Geometry) IsNull() bool { return !g.Valid }
func (g Geometry) Plain() any {
	if !g.Valid {
		return nil
	}
	return g.WKT
}

var wktPrefixes = map[string]string{
	TypePoint:        "POINT",
	TypePolygon:      "POLYGON",
	TypeMultipolygon: "MULTIPOLYGON",
}

func newGeometry(tag string) Constructor {
	return func(v any, _ Options) (Value, error) {
		if v == nil {
			return Geometry{tag: tag}, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, invalid(tag, v, "geometry must be WKT text")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return Geometry{tag: tag}, nil
		}
		if prefix, ok := wktPrefixes[tag]; ok && !strings.HasPrefix(strings.ToUpper(s), prefix) {
			return nil, invalid(tag, v, "expected "+prefix)
		}
		return Geometry{tag: tag, WKT: s, Valid: true}, nil
	}
}

// text renders a raw scalar as trimmed text. Empty text counts as absent.
func text(v any) (string, bool) {
	if composite(v) {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		s = t.Format(time.RFC3339)
	case pgtype.Numeric:
		if !t.Valid {
			return "", false
		}
		dv, err := t.Value()
		if err != nil || dv == nil {
			return "", false
		}
		s = fmt.Sprint(dv)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
