package validate

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/quality"
)

var (
	// ErrQAFatal is returned by Result when a FATAL check failed.
	ErrQAFatal = errors.New("fatal qa check failed")

	// ErrDuplicatePrimaryKeys is returned by Result when a source id was
	// seen more than once.
	ErrDuplicatePrimaryKeys = errors.New("duplicate primary keys")
)

// maxReportedDuplicates bounds the ids listed in the duplicates error.
const maxReportedDuplicates = 10

// Validator runs the declared checks of one catalogue/entity over all
// entities of an import and keeps the run totals.
type Validator struct {
	reporter *quality.Reporter

	attrs  []string
	checks map[string][]Check

	seen       map[string]struct{}
	duplicates []string
	invalid    map[string]int
	fatal      bool
}

// New creates a validator for the dataset. Checks restricted to another
// source application are left out.
func New(ds *core.Dataset, checks Checks, reporter *quality.Reporter) *Validator {
	v := &Validator{
		reporter: reporter,
		checks:   make(map[string][]Check),
		seen:     make(map[string]struct{}),
		invalid:  make(map[string]int),
	}
	for attr, list := range checks.For(ds.Catalogue, ds.Entity) {
		for _, c := range list {
			if c.SourceApp != "" && c.SourceApp != ds.Source.Application {
				continue
			}
			v.checks[attr] = append(v.checks[attr], c)
		}
		if len(v.checks[attr]) > 0 {
			v.attrs = append(v.attrs, attr)
		}
	}
	slices.Sort(v.attrs)
	return v
}

// Validate checks one entity. It never rejects the entity; failures are
// reported and counted.
func (v *Validator) Validate(e core.Entity) {
	if id, ok := e[core.FieldSourceID]; ok && id != nil {
		key := fmt.Sprint(id)
		if _, dup := v.seen[key]; dup {
			v.duplicates = append(v.duplicates, key)
		} else {
			v.seen[key] = struct{}{}
		}
	}

	for _, attr := range v.attrs {
		value, found := core.Lookup(e, attr)
		for i := range v.checks[attr] {
			c := &v.checks[attr][i]
			if found && c.passes(value) {
				continue
			}
			v.fail(e, attr, value, c, found)
		}
	}
}

func (v *Validator) fail(e core.Entity, attr string, value any, c *Check, found bool) {
	v.invalid[attr]++
	if c.Level == quality.Fatal {
		v.fatal = true
	}
	msg := c.Msg
	if !found {
		msg = "attribute missing"
	} else if msg == "" {
		msg = c.Type + " check failed"
	}
	v.reporter.Add(quality.Issue{
		Check:     c.Name,
		EntityRef: quality.EntityRef(e),
		Attribute: attr,
		Severity:  c.Level,
		Value:     value,
		Msg:       msg,
	})
}

// Result returns the invalid counters, keyed num_invalid_<attr>, and an
// error when a FATAL check failed or duplicate primary keys were found.
func (v *Validator) Result() (map[string]int, error) {
	counters := make(map[string]int, len(v.attrs))
	for _, attr := range v.attrs {
		counters["num_invalid_"+attr] = v.invalid[attr]
	}

	var result *multierror.Error
	if v.fatal {
		result = multierror.Append(result, ErrQAFatal)
	}
	if len(v.duplicates) > 0 {
		ids := v.duplicates
		if len(ids) > maxReportedDuplicates {
			ids = ids[:maxReportedDuplicates]
		}
		result = multierror.Append(result, fmt.Errorf("%w: %d found (%s)",
			ErrDuplicatePrimaryKeys, len(v.duplicates), strings.Join(ids, ", ")))
	}
	return counters, result.ErrorOrNil()
}
