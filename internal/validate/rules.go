package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	coordinate = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

	// sridPrefix is the EWKT spatial reference, e.g. "SRID=28992;".
	sridPrefix = regexp.MustCompile(`(?i)^\s*SRID=\d+\s*;`)
)

// passes runs the check against a present attribute value.
func (c *Check) passes(v any) bool {
	switch c.Type {
	case CheckBoolean:
		if v == nil {
			return c.AllowNull
		}
		_, ok := v.(bool)
		return ok
	case CheckRegex:
		if v == nil {
			return c.AllowNull
		}
		return c.re.MatchString(stringify(v))
	case CheckBetween:
		f, ok := number(v)
		return ok && f >= *c.Min && f <= *c.Max
	case CheckGeometry:
		if v == nil {
			return c.AllowNull
		}
		return c.inBounds(stringify(v))
	}
	return false
}

// inBounds checks every coordinate of a WKT string, alternating x and y.
func (c *Check) inBounds(wkt string) bool {
	wkt = sridPrefix.ReplaceAllString(wkt, "")
	for i, s := range coordinate.FindAllString(wkt, -1) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return false
		}
		if i%2 == 0 {
			if f < c.XMin || f > c.XMax {
				return false
			}
		} else if f < c.YMin || f > c.YMax {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format("2006-01-02T15:04:05.000000")
	default:
		return fmt.Sprint(v)
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
