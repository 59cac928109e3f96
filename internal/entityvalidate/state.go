package entityvalidate

import (
	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/quality"
)

type stateCandidate struct{}

func (stateCandidate) Name() string                  { return "state" }
func (stateCandidate) Applies(ds *core.Dataset) bool { return ds.HasStates }
func (stateCandidate) New(_ *core.Dataset, r *quality.Reporter) Validator {
	return NewStateValidator(r)
}

// StateValidator checks the validity period and sequence number of entities
// with states.
type StateValidator struct {
	reporter *quality.Reporter
	ok       bool

	volgnummers map[string]map[int64]struct{}
	openEnded   map[string]struct{}
}

// NewStateValidator creates a state validator reporting to r.
func NewStateValidator(r *quality.Reporter) *StateValidator {
	return &StateValidator{
		reporter:    r,
		ok:          true,
		volgnummers: make(map[string]map[int64]struct{}),
		openEnded:   make(map[string]struct{}),
	}
}

func (v *StateValidator) Validate(e core.Entity, merged bool) bool {
	ok := true
	fatal := func(check, attr string) {
		v.reporter.Add(quality.NewIssue(check, e, attr, quality.Fatal))
		ok = false
	}

	begin, hasBegin := asTime(e[core.FieldStartValidity])
	end, hasEnd := asTime(e[core.FieldEndValidity])
	if !hasBegin {
		fatal("begin_geldigheid_missing", core.FieldStartValidity)
	} else if hasEnd && begin.After(end) {
		issue := quality.NewIssue("begin_after_end_geldigheid", e, core.FieldStartValidity, quality.Warning)
		issue.ComparedTo = core.FieldEndValidity
		issue.ComparedToValue = e[core.FieldEndValidity]
		v.reporter.Add(issue)
	}

	seq, hasSeq := asInt(e[core.FieldSequenceNumber])
	if !hasSeq || seq < 1 {
		fatal("volgnummer_invalid", core.FieldSequenceNumber)
	}

	// Merged entities combine several source rows; their sequence numbers
	// and end dates are set by the merge strategy.
	if !merged {
		id := e.ID()
		if hasSeq {
			seen, exists := v.volgnummers[id]
			if !exists {
				seen = make(map[int64]struct{})
				v.volgnummers[id] = seen
			}
			if _, dup := seen[seq]; dup {
				fatal("volgnummer_duplicate", core.FieldSequenceNumber)
			}
			seen[seq] = struct{}{}
		}
		if e[core.FieldEndValidity] == nil {
			if _, dup := v.openEnded[id]; dup {
				v.reporter.Add(quality.NewIssue("eind_geldigheid_open_multiple", e, core.FieldEndValidity, quality.Warning))
			}
			v.openEnded[id] = struct{}{}
		}
	}

	if !ok {
		v.ok = false
	}
	return ok
}

func (v *StateValidator) Result() bool {
	return v.ok
}
