// Package quality holds the QA issue model shared by the validators, the
// issue reporter that logs and counts issues, and the import metrics.
package quality

import (
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Severity of a QA finding.
type Severity string

const (
	Fatal   Severity = "FATAL"
	Warning Severity = "WARNING"
	Info    Severity = "INFO"
)

// ParseSeverity parses a level name, case-sensitive as written in check
// definitions.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case Fatal, Warning, Info:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func (s Severity) level() slog.Level {
	switch s {
	case Fatal:
		return slog.LevelError
	case Warning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Issue is a single QA finding on one entity.
type Issue struct {
	Check     string
	EntityRef string
	Attribute string
	Severity  Severity
	Value     any

	// ComparedTo names the attribute or constant the value was checked
	// against, ComparedToValue holds its value.
	ComparedTo      string
	ComparedToValue any

	Msg string
}

// EntityRef identifies an entity in issue output: its identificatie,
// followed by ".volgnummer" for entities with states.
func EntityRef(e core.Entity) string {
	id := e.ID()
	if seq, ok := e[core.FieldSequenceNumber]; ok && seq != nil {
		return fmt.Sprintf("%s.%v", id, seq)
	}
	return id
}

// NewIssue creates an issue for an attribute of an entity.
func NewIssue(check string, e core.Entity, attribute string, severity Severity) Issue {
	return Issue{
		Check:     check,
		EntityRef: EntityRef(e),
		Attribute: attribute,
		Severity:  severity,
		Value:     e[attribute],
	}
}

func (i Issue) attrs() []any {
	attrs := []any{
		"check", i.Check,
		"entity_ref", i.EntityRef,
		"attribute", i.Attribute,
		"severity", string(i.Severity),
		"value", i.Value,
	}
	if i.ComparedTo != "" {
		attrs = append(attrs, "compared_to", i.ComparedTo, "compared_to_value", i.ComparedToValue)
	}
	return attrs
}
