// Package entityvalidate runs the domain validators on converted entities:
// temporal state checks for entities with states plus catalogue specific
// checks. Validators are selected per dataset from a registry of candidates.
package entityvalidate

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/quality"
)

// ErrEntityValidation is returned by Result when any validator failed.
var ErrEntityValidation = errors.New("entity validation failed")

// Validator checks entities of one import and keeps the run state.
type Validator interface {
	// Validate checks one entity and reports whether it passed. merged is
	// true for entities produced by the merger.
	Validate(e core.Entity, merged bool) bool
	// Result reports whether every entity seen so far passed.
	Result() bool
}

// Candidate is a validator kind that can be selected for a dataset.
type Candidate interface {
	Name() string
	Applies(ds *core.Dataset) bool
	New(ds *core.Dataset, r *quality.Reporter) Validator
}

var (
	registry   = make(map[string]Candidate)
	registryMu sync.RWMutex
)

func init() {
	Register(stateCandidate{})
	Register(gebiedenCandidate{})
	Register(bagCandidate{})
}

// Register adds a candidate to the registry.
// Panics if a candidate with the same name is already registered.
func Register(c Candidate) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[c.Name()]; exists {
		panic(fmt.Sprintf("entity validator already registered: %s", c.Name()))
	}
	registry[c.Name()] = c
}

// All returns the registered candidates sorted by name.
func All() []Candidate {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Candidate, 0, len(registry))
	for _, c := range registry {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// EntityValidator runs every validator that applies to a dataset.
type EntityValidator struct {
	ds         *core.Dataset
	names      []string
	validators []Validator
}

// New selects the applicable validators for ds.
func New(ds *core.Dataset, r *quality.Reporter) *EntityValidator {
	ev := &EntityValidator{ds: ds}
	for _, c := range All() {
		if c.Applies(ds) {
			ev.names = append(ev.names, c.Name())
			ev.validators = append(ev.validators, c.New(ds, r))
		}
	}
	return ev
}

// Names returns the names of the selected validators.
func (ev *EntityValidator) Names() []string {
	return ev.names
}

// Validate runs all selected validators on the entity.
func (ev *EntityValidator) Validate(e core.Entity, merged bool) bool {
	ok := true
	for _, v := range ev.validators {
		if !v.Validate(e, merged) {
			ok = false
		}
	}
	return ok
}

// Result returns ErrEntityValidation when any selected validator failed.
func (ev *EntityValidator) Result() error {
	var failed []string
	for i, v := range ev.validators {
		if !v.Result() {
			failed = append(failed, ev.names[i])
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w for %s: %v", ErrEntityValidation, ev.ds.Name(), failed)
	}
	return nil
}
