// Package validate implements the declarative QA checks run on every
// converted entity of an import.
package validate

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/gobimport/internal/quality"
)

// Check types.
const (
	CheckBoolean  = "boolean"
	CheckRegex    = "regex"
	CheckBetween  = "between"
	CheckGeometry = "geometry"
)

// ErrInvalidCheck is returned for malformed check definitions.
var ErrInvalidCheck = errors.New("invalid qa check")

//go:embed qa_checks.yaml
var defaultChecks []byte

// Check is one declared QA check on an attribute.
type Check struct {
	Name      string           `yaml:"name"`
	Type      string           `yaml:"type"`
	Level     quality.Severity `yaml:"level"`
	Msg       string           `yaml:"msg"`
	AllowNull bool             `yaml:"allow_null"`
	// SourceApp restricts the check to entities from one source application.
	SourceApp string `yaml:"source_app"`

	Pattern string   `yaml:"pattern"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`

	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`

	re *regexp.Regexp
}

// Checks holds check definitions by catalogue, entity and attribute path.
type Checks map[string]map[string]map[string][]Check

// For returns the checks of one catalogue/entity.
func (c Checks) For(catalogue, entity string) map[string][]Check {
	return c[catalogue][entity]
}

// DefaultChecks returns the built-in check definitions.
func DefaultChecks() (Checks, error) {
	return ParseChecks(defaultChecks)
}

// LoadChecks reads check definitions from a YAML or JSON file.
func LoadChecks(path string) (Checks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read qa checks: %w", err)
	}
	return ParseChecks(data)
}

// ParseChecks parses and compiles check definitions.
func ParseChecks(data []byte) (Checks, error) {
	var checks Checks
	if err := yaml.Unmarshal(data, &checks); err != nil {
		return nil, fmt.Errorf("parse qa checks: %w", err)
	}
	for catalogue, entities := range checks {
		for entity, attrs := range entities {
			for attr, list := range attrs {
				for i := range list {
					if err := list[i].compile(); err != nil {
						return nil, fmt.Errorf("%s.%s.%s: %w", catalogue, entity, attr, err)
					}
				}
			}
		}
	}
	return checks, nil
}

func (c *Check) compile() error {
	if _, err := quality.ParseSeverity(string(c.Level)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheck, err)
	}
	if c.Name == "" {
		c.Name = c.Type
	}
	switch c.Type {
	case CheckBoolean, CheckGeometry:
	case CheckRegex:
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCheck, err)
		}
		c.re = re
	case CheckBetween:
		if c.Min == nil || c.Max == nil {
			return fmt.Errorf("%w: between needs min and max", ErrInvalidCheck)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCheck, c.Type)
	}
	return nil
}
