package convert

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Converter turns rows into entities according to a dataset mapping.
type Converter struct {
	ds       *core.Dataset
	fields   []*FieldExtractor
	logger   *slog.Logger
	failures int
}

// New compiles the mapping of a dataset. Unknown types and filters are
// reported here, before any row is read.
func New(ds *core.Dataset, logger *slog.Logger) (*Converter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(ds.Mapping))
	for name, m := range ds.Mapping {
		if m.SourceMapping != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	c := &Converter{ds: ds, logger: logger}
	for _, name := range names {
		f, err := NewFieldExtractor(name, ds.Mapping[name])
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", ds.Name(), err)
		}
		c.fields = append(c.fields, f)
	}
	return c, nil
}

// Convert converts one row. Attributes whose value cannot be constructed are
// logged and set to null; an error is only returned for mapping errors that
// make the row unconvertible.
func (c *Converter) Convert(row core.Row) (core.Entity, error) {
	entity := make(core.Entity, len(c.fields)+1)

	type failure struct {
		attr string
		err  error
	}
	var failed []failure

	for _, f := range c.fields {
		value, err := f.Extract(row)
		if value == nil {
			return nil, err
		}
		if err != nil {
			failed = append(failed, failure{attr: f.Name, err: err})
		}
		entity[f.Name] = value.Plain()
	}

	entity[core.FieldSourceID] = c.sourceID(row, entity)

	for _, fl := range failed {
		attrs := []any{
			"dataset", c.ds.Name(),
			"attribute", fl.attr,
			core.FieldID, entity.ID(),
		}
		if c.ds.HasStates {
			attrs = append(attrs, core.FieldSequenceNumber, entity[core.FieldSequenceNumber])
		}
		attrs = append(attrs, "error", fl.err)
		c.logger.Error("type conversion failed, value set to null", attrs...)
	}
	c.failures += len(failed)
	return entity, nil
}

// Failures returns the number of attribute values set to null because their
// type could not be constructed.
func (c *Converter) Failures() int {
	return c.failures
}

// Fields returns the compiled attribute extractors in name order.
func (c *Converter) Fields() []*FieldExtractor {
	return c.fields
}

// sourceID is the row's identity as a string. States of one entity share
// the identity, so it is suffixed with ".volgnummer" for them.
func (c *Converter) sourceID(row core.Row, e core.Entity) any {
	id := sourceID(row[c.ds.Source.EntityID])
	if id == nil || !c.ds.HasStates {
		return id
	}
	if seq, ok := e[core.FieldSequenceNumber]; ok && seq != nil {
		return fmt.Sprintf("%v.%v", id, seq)
	}
	return id
}

func sourceID(v any) any {
	switch t := numericText(v).(type) {
	case nil:
		return nil
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

