package gobtypes

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultDateFormat     = "%Y-%m-%d"
	defaultDateTimeFormat = "%Y-%m-%dT%H:%M:%S.%f"
)

// fallbackDateTimeLayouts are tried when no explicit format is configured.
var fallbackDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date is a nullable calendar date.
type Date struct {
	Value time.Time
	Valid bool
}

func (d Date) Type() string { return TypeDate }
func (d Date) IsNull() bool { return !d.Valid }
func (d Date) Plain() any {
	if !d.Valid {
		return nil
	}
	return d.Value
}

// DateTime is a nullable timestamp.
type DateTime struct {
	Value time.Time
	Valid bool
}

func (d DateTime) Type() string { return TypeDateTime }
func (d DateTime) IsNull() bool { return !d.Valid }
func (d DateTime) Plain() any {
	if !d.Valid {
		return nil
	}
	return d.Value
}

func newDate(v any, opts Options) (Value, error) {
	t, ok, err := parseTime(TypeDate, v, opts.String("format"), defaultDateFormat)
	if err != nil || !ok {
		return Date{}, err
	}
	y, m, d := t.Date()
	return Date{Value: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}, nil
}

func newDateTime(v any, opts Options) (Value, error) {
	t, ok, err := parseTime(TypeDateTime, v, opts.String("format"), defaultDateTimeFormat)
	if err != nil || !ok {
		return DateTime{}, err
	}
	return DateTime{Value: t, Valid: true}, nil
}

func parseTime(tag string, v any, format, defaultFormat string) (time.Time, bool, error) {
	if t, ok := v.(time.Time); ok {
		return t, !t.IsZero(), nil
	}
	s, ok := text(v)
	if !ok {
		return time.Time{}, false, nil
	}

	explicit := format != ""
	if !explicit {
		format = defaultFormat
	}
	layout, err := StrftimeLayout(format)
	if err != nil {
		return time.Time{}, false, err
	}
	if t, err := time.Parse(layout, s); err == nil {
		return t, true, nil
	}
	if !explicit {
		for _, l := range fallbackDateTimeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, true, nil
			}
		}
	}
	return time.Time{}, false, invalid(tag, v, "does not match format "+format)
}

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// StrftimeLayout translates a strftime format into a Go time layout.
//
// Go parses fractional seconds after the seconds field without a layout
// element, so %f (and the dot before it) is dropped.
func StrftimeLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("dangling %% in format %q", format)
		}
		i++
		d := format[i]
		if d == 'f' {
			s := b.String()
			b.Reset()
			b.WriteString(strings.TrimSuffix(s, "."))
			continue
		}
		layout, ok := strftimeDirectives[d]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c in format %q", d, format)
		}
		b.WriteString(layout)
	}
	return b.String(), nil
}
