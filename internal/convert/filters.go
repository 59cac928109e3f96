package convert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownFilter is returned for a filter name that is not supported.
var ErrUnknownFilter = errors.New("unknown filter")

// Filter transforms a resolved value. Non-string values pass unchanged.
type Filter func(v any) any

// pythonGroupRef matches \1 style group references in replacement strings.
var pythonGroupRef = regexp.MustCompile(`\\(\d+)`)

// compileFilters builds the filter chain of one attribute. Each spec is
// [name, args...].
func compileFilters(specs [][]any) ([]Filter, error) {
	filters := make([]Filter, 0, len(specs))
	for _, spec := range specs {
		if len(spec) == 0 {
			return nil, fmt.Errorf("%w: empty filter", ErrUnknownFilter)
		}
		name := fmt.Sprint(spec[0])
		args := make([]string, 0, len(spec)-1)
		for _, a := range spec[1:] {
			args = append(args, fmt.Sprint(a))
		}

		var f Filter
		switch name {
		case "re.sub":
			if len(args) != 2 {
				return nil, fmt.Errorf("filter re.sub expects pattern and replacement, got %d args", len(args))
			}
			re, err := regexp.Compile(args[0])
			if err != nil {
				return nil, fmt.Errorf("filter re.sub: %w", err)
			}
			repl := pythonGroupRef.ReplaceAllString(args[1], "$${$1}")
			f = stringFilter(func(s string) string { return re.ReplaceAllString(s, repl) })
		case "upper":
			f = stringFilter(strings.ToUpper)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func stringFilter(fn func(string) string) Filter {
	return func(v any) any {
		if s, ok := v.(string); ok {
			return fn(s)
		}
		return v
	}
}

func applyFilters(v any, filters []Filter) any {
	for _, f := range filters {
		v = f(v)
	}
	return v
}
