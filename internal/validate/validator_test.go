package validate

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/quality"
)

const testChecks = `
test:
  things:
    code:
      - name: code_format
        type: regex
        pattern: '^[A-Z]\d{2}$'
        level: FATAL
    omschrijving:
      - type: regex
        pattern: '^.+$'
        level: WARNING
        allow_null: true
    hoogte:
      - type: between
        min: 0
        max: 10
        level: WARNING
    actief:
      - type: boolean
        level: INFO
    geometrie:
      - type: geometry
        level: WARNING
        x_min: 0
        x_max: 100
        y_min: 1000
        y_max: 2000
    status.code:
      - type: regex
        pattern: '^\d$'
        level: FATAL
        source_app: OtherApp
`

func discardReporter() *quality.Reporter {
	return quality.NewReporter(slog.New(slog.NewTextHandler(io.Discard, nil)), "test", "things")
}

func testDataset() *core.Dataset {
	return &core.Dataset{
		Catalogue: "test",
		Entity:    "things",
		Source:    core.Source{Application: "MyApp"},
	}
}

func newTestValidator(t *testing.T) (*Validator, *quality.Reporter) {
	t.Helper()
	checks, err := ParseChecks([]byte(testChecks))
	require.NoError(t, err)
	r := discardReporter()
	return New(testDataset(), checks, r), r
}

func validEntity() core.Entity {
	return core.Entity{
		"_source_id":   "1",
		"code":         "A01",
		"omschrijving": nil,
		"hoogte":       int64(5),
		"actief":       true,
		"geometrie":    "POINT (50.5 1500)",
	}
}

func TestParseChecks_Default(t *testing.T) {
	checks, err := DefaultChecks()
	require.NoError(t, err)
	assert.NotEmpty(t, checks.For("meetbouten", "meetbouten"))
	assert.NotEmpty(t, checks.For("gebieden", "buurten"))
	assert.NotEmpty(t, checks.For("bag", "panden"))
}

func TestParseChecks_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown type", yaml: "a:\n  b:\n    c:\n      - type: length\n        level: FATAL\n"},
		{name: "unknown level", yaml: "a:\n  b:\n    c:\n      - type: boolean\n        level: ERROR\n"},
		{name: "bad regex", yaml: "a:\n  b:\n    c:\n      - type: regex\n        pattern: '('\n        level: FATAL\n"},
		{name: "between without max", yaml: "a:\n  b:\n    c:\n      - type: between\n        min: 1\n        level: FATAL\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChecks([]byte(tt.yaml))
			assert.True(t, errors.Is(err, ErrInvalidCheck), "got %v", err)
		})
	}
}

func TestValidator_Valid(t *testing.T) {
	v, r := newTestValidator(t)
	v.Validate(validEntity())

	counters, err := v.Result()
	require.NoError(t, err)
	assert.Equal(t, 0, counters["num_invalid_code"])
	assert.Equal(t, 0, r.Count(quality.Warning))
	assert.NotContains(t, counters, "num_invalid_status.code")
}

func TestCheck_Between(t *testing.T) {
	min, max := 1.0, 10.0
	c := Check{Type: CheckBetween, Level: quality.Warning, Min: &min, Max: &max}
	require.NoError(t, c.compile())

	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "min", value: int64(1), want: true},
		{name: "max", value: 10.0, want: true},
		{name: "inside", value: 5, want: true},
		{name: "below", value: 0.999, want: false},
		{name: "above", value: int64(11), want: false},
		{name: "string min", value: "1", want: true},
		{name: "string max", value: "10.0", want: true},
		{name: "string above", value: "10.01", want: false},
		{name: "json number", value: json.Number("10"), want: true},
		{name: "json number below", value: json.Number("-1"), want: false},
		{name: "not a number", value: "abc", want: false},
		{name: "null", value: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.passes(tt.value))
		})
	}
}

func TestCheck_NullHandling(t *testing.T) {
	min, max := 0.0, 1.0
	tests := []struct {
		name  string
		check Check
		want  bool
	}{
		{name: "regex", check: Check{Type: CheckRegex, Pattern: ".*"}, want: false},
		{name: "regex allow null", check: Check{Type: CheckRegex, Pattern: ".*", AllowNull: true}, want: true},
		{name: "boolean", check: Check{Type: CheckBoolean}, want: false},
		{name: "boolean allow null", check: Check{Type: CheckBoolean, AllowNull: true}, want: true},
		{name: "between allow null", check: Check{Type: CheckBetween, Min: &min, Max: &max, AllowNull: true}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check.Level = quality.Info
			require.NoError(t, tt.check.compile())
			assert.Equal(t, tt.want, tt.check.passes(nil))
		})
	}
}

func TestCheck_Geometry(t *testing.T) {
	c := Check{Type: CheckGeometry, Level: quality.Warning, XMin: 0, XMax: 100, YMin: 1000, YMax: 2000}
	require.NoError(t, c.compile())

	assert.True(t, c.passes("POLYGON ((0 1000, 100 2000, 50 1500, 0 1000))"))
	assert.False(t, c.passes("POINT (101 1500)"))
	assert.False(t, c.passes("POINT (50 999.9)"))
	assert.False(t, c.passes("POINT (-1 1500)"))
}

func TestCheck_GeometryWithSRID(t *testing.T) {
	c := Check{Type: CheckGeometry, Level: quality.Warning, XMin: 110000, XMax: 135000, YMin: 475000, YMax: 495000}
	require.NoError(t, c.compile())

	assert.True(t, c.passes("SRID=28992;POINT(120000.5 480000.5)"))
	assert.True(t, c.passes("srid=28992; POINT (120000 480000)"))
	assert.True(t, c.passes("POINT(120000.5 480000.5)"))
	assert.False(t, c.passes("SRID=28992;POINT(100000.5 480000.5)"))
}

func TestValidator_FailuresAreCounted(t *testing.T) {
	v, r := newTestValidator(t)

	e := validEntity()
	e["hoogte"] = "11"
	e["actief"] = "J"
	v.Validate(e)

	e = validEntity()
	e["_source_id"] = "2"
	e["hoogte"] = nil
	v.Validate(e)

	counters, err := v.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, counters["num_invalid_hoogte"])
	assert.Equal(t, 1, counters["num_invalid_actief"])
	assert.Equal(t, 2, r.Count(quality.Warning))
	assert.Equal(t, 1, r.Count(quality.Info))
}

func TestValidator_MissingAttribute(t *testing.T) {
	v, r := newTestValidator(t)

	e := validEntity()
	delete(e, "omschrijving")
	v.Validate(e)

	counters, err := v.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, counters["num_invalid_omschrijving"])
	assert.Equal(t, 1, r.Count(quality.Warning))
}

func TestValidator_FatalFailsResult(t *testing.T) {
	v, _ := newTestValidator(t)

	e := validEntity()
	e["code"] = "a1"
	v.Validate(e)
	v.Validate(withID(validEntity(), "2"))

	counters, err := v.Result()
	assert.True(t, errors.Is(err, ErrQAFatal))
	assert.False(t, errors.Is(err, ErrDuplicatePrimaryKeys))
	assert.Equal(t, 1, counters["num_invalid_code"])
}

func TestValidator_DuplicatePrimaryKeys(t *testing.T) {
	v, _ := newTestValidator(t)

	v.Validate(validEntity())
	v.Validate(validEntity())
	v.Validate(withID(validEntity(), nil))
	v.Validate(withID(validEntity(), nil))

	_, err := v.Result()
	assert.True(t, errors.Is(err, ErrDuplicatePrimaryKeys))
	assert.False(t, errors.Is(err, ErrQAFatal))
	assert.Contains(t, err.Error(), "1 found (1)")
}

func TestValidator_SourceAppRestriction(t *testing.T) {
	checks, err := ParseChecks([]byte(testChecks))
	require.NoError(t, err)

	ds := testDataset()
	ds.Source.Application = "OtherApp"
	v := New(ds, checks, discardReporter())

	e := validEntity()
	e["status"] = map[string]any{"code": "x"}
	v.Validate(e)

	counters, err := v.Result()
	assert.True(t, errors.Is(err, ErrQAFatal))
	assert.Equal(t, 1, counters["num_invalid_status.code"])
}

func withID(e core.Entity, id any) core.Entity {
	e["_source_id"] = id
	return e
}
