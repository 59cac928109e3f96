package entityvalidate

import (
	"time"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/quality"
)

type gebiedenCandidate struct{}

func (gebiedenCandidate) Name() string                  { return "gebieden" }
func (gebiedenCandidate) Applies(ds *core.Dataset) bool { return ds.Catalogue == "gebieden" }
func (gebiedenCandidate) New(_ *core.Dataset, r *quality.Reporter) Validator {
	return &GebiedenValidator{reporter: r, now: time.Now}
}

// GebiedenValidator checks the dates of area entities. Every finding is a
// warning.
type GebiedenValidator struct {
	reporter *quality.Reporter
	now      func() time.Time
}

func (v *GebiedenValidator) Validate(e core.Entity, _ bool) bool {
	now := v.now()

	if begin, ok := asTime(e[core.FieldStartValidity]); ok && begin.After(now) {
		issue := quality.NewIssue("begin_geldigheid_in_future", e, core.FieldStartValidity, quality.Warning)
		issue.ComparedTo = "now"
		issue.ComparedToValue = now
		v.reporter.Add(issue)
	}

	limit, limitName := now, "now"
	if end, ok := asTime(e[core.FieldEndValidity]); ok {
		limit, limitName = end, core.FieldEndValidity
	}
	for _, attr := range []string{"documentdatum", "registratiedatum"} {
		d, ok := asTime(e[attr])
		if !ok || !d.After(limit) {
			continue
		}
		issue := quality.NewIssue(attr+"_after_"+limitName, e, attr, quality.Warning)
		issue.ComparedTo = limitName
		issue.ComparedToValue = limit
		v.reporter.Add(issue)
	}
	return true
}

func (v *GebiedenValidator) Result() bool {
	return true
}
