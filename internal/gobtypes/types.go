// Package gobtypes implements the typed values of the target model and the
// constructors that build them from raw source values.
//
// Every constructor follows the same contract: nil input yields the null
// value of the type, unparseable input yields an error wrapping
// [ErrInvalidValue]. Callers decide whether such an error is fatal.
package gobtypes

import (
	"errors"
	"fmt"
)

// Type tags as used in dataset mappings.
const (
	TypeString            = "GOB.String"
	TypeCharacter         = "GOB.Character"
	TypeInteger           = "GOB.Integer"
	TypeBigInteger        = "GOB.BigInteger"
	TypeDecimal           = "GOB.Decimal"
	TypeBoolean           = "GOB.Boolean"
	TypeDate              = "GOB.Date"
	TypeDateTime          = "GOB.DateTime"
	TypeJSON              = "GOB.JSON"
	TypeGeometry          = "GOB.Geometry"
	TypePoint             = "GOB.Point"
	TypePolygon           = "GOB.Polygon"
	TypeMultipolygon      = "GOB.Multipolygon"
	TypeReference         = "GOB.Reference"
	TypeManyReference     = "GOB.ManyReference"
	TypeVeryManyReference = "GOB.VeryManyReference"
)

var (
	// ErrUnknownType is returned for a type tag without constructor.
	ErrUnknownType = errors.New("unknown type")

	// ErrInvalidValue is wrapped by every constructor failure.
	ErrInvalidValue = errors.New("invalid value")
)

// Value is a typed target value.
type Value interface {
	// Type returns the type tag.
	Type() string
	// IsNull reports whether the value is the null value of its type.
	IsNull() bool
	// Plain returns the value as a plain Go value: nil, string, int64,
	// float64, bool, time.Time, map[string]any or []any.
	Plain() any
}

// Options are the extra mapping keys passed to a constructor.
type Options map[string]any

// String returns the option as string, or "" when absent or not a string.
func (o Options) String(key string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return ""
}

// Int returns the option as int.
func (o Options) Int(key string) (int, bool) {
	switch v := o[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Constructor builds a typed value from a raw value.
type Constructor func(v any, opts Options) (Value, error)

var constructors = map[string]Constructor{
	TypeString:            newString,
	TypeCharacter:         newCharacter,
	TypeInteger:           newInteger(TypeInteger),
	TypeBigInteger:        newInteger(TypeBigInteger),
	TypeDecimal:           newDecimal,
	TypeBoolean:           newBoolean,
	TypeDate:              newDate,
	TypeDateTime:          newDateTime,
	TypeJSON:              newJSON,
	TypeGeometry:          newGeometry(TypeGeometry),
	TypePoint:             newGeometry(TypePoint),
	TypePolygon:           newGeometry(TypePolygon),
	TypeMultipolygon:      newGeometry(TypeMultipolygon),
	TypeReference:         newReference,
	TypeManyReference:     newManyReference(TypeManyReference),
	TypeVeryManyReference: newManyReference(TypeVeryManyReference),
}

// Known reports whether a constructor exists for the type tag.
func Known(tag string) bool {
	_, ok := constructors[tag]
	return ok
}

// New constructs a typed value.
func New(tag string, v any, opts Options) (Value, error) {
	ctor, ok := constructors[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, tag)
	}
	if composite(v) && !holdsComposite(tag) {
		return nil, invalid(tag, v, "expected a single value")
	}
	return ctor(v, opts)
}

// holdsComposite reports whether values of the type may be lists or objects.
func holdsComposite(tag string) bool {
	return tag == TypeJSON || IsReference(tag) || IsManyReference(tag)
}

// Null returns the null value of a type. Unknown tags yield a null string.
func Null(tag string) Value {
	if !Known(tag) {
		return String{}
	}
	v, err := New(tag, nil, nil)
	if err != nil {
		return String{}
	}
	return v
}

// IsReference reports whether the tag is a single reference type.
func IsReference(tag string) bool {
	return tag == TypeReference
}

// IsManyReference reports whether the tag is a many-reference type.
func IsManyReference(tag string) bool {
	return tag == TypeManyReference || tag == TypeVeryManyReference
}

// IsGeometry reports whether the tag is one of the geometry types.
func IsGeometry(tag string) bool {
	switch tag {
	case TypeGeometry, TypePoint, TypePolygon, TypeMultipolygon:
		return true
	}
	return false
}

func invalid(tag string, v any, reason string) error {
	return fmt.Errorf("%w for %s: %v (%s)", ErrInvalidValue, tag, v, reason)
}
