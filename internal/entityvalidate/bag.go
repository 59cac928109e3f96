package entityvalidate

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/quality"
)

// bagMunicipality is the identificatie prefix of the objects that are
// checked; objects of other municipalities pass unchecked.
const bagMunicipality = "0363"

// gebruiksdoelen is the domain of usage purposes.
var gebruiksdoelen = []string{
	"woonfunctie",
	"bijeenkomstfunctie",
	"celfunctie",
	"gezondheidszorgfunctie",
	"industriefunctie",
	"kantoorfunctie",
	"logiesfunctie",
	"onderwijsfunctie",
	"sportfunctie",
	"winkelfunctie",
	"overige gebruiksfunctie",
}

// gebruiksdoelPlus maps each plus attribute to the purpose it refines.
var gebruiksdoelPlus = map[string]string{
	"gebruiksdoel_woonfunctie":            "woonfunctie",
	"gebruiksdoel_gezondheidszorgfunctie": "gezondheidszorgfunctie",
}

type bagCandidate struct{}

func (bagCandidate) Name() string { return "bag" }
func (bagCandidate) Applies(ds *core.Dataset) bool {
	return ds.Catalogue == "bag" && (ds.Entity == "panden" || ds.Entity == "verblijfsobjecten")
}
func (bagCandidate) New(ds *core.Dataset, r *quality.Reporter) Validator {
	return &BAGValidator{entity: ds.Entity, reporter: r}
}

// BAGValidator runs the collection specific checks of the address register.
// Every finding is a warning.
type BAGValidator struct {
	entity   string
	reporter *quality.Reporter
}

func (v *BAGValidator) Validate(e core.Entity, _ bool) bool {
	if !strings.HasPrefix(e.ID(), bagMunicipality) {
		return true
	}
	switch v.entity {
	case "panden":
		v.validateBouwlagen(e)
	case "verblijfsobjecten":
		v.validateGebruiksdoel(e)
	}
	return true
}

func (v *BAGValidator) Result() bool {
	return true
}

func (v *BAGValidator) warn(check string, e core.Entity, attr, comparedTo string, comparedValue any) {
	issue := quality.NewIssue(check, e, attr, quality.Warning)
	issue.ComparedTo = comparedTo
	issue.ComparedToValue = comparedValue
	v.reporter.Add(issue)
}

// validateBouwlagen checks aantal_bouwlagen against the floor range. The
// ground floor (0) counts as a level.
func (v *BAGValidator) validateBouwlagen(e core.Entity) {
	laagste, okL := asInt(e["laagste_bouwlaag"])
	hoogste, okH := asInt(e["hoogste_bouwlaag"])
	if !okL || !okH {
		return
	}
	computed := hoogste - laagste + 1

	aantal, ok := asInt(e["aantal_bouwlagen"])
	switch {
	case !ok:
		v.warn("aantal_bouwlagen_missing", e, "aantal_bouwlagen", "computed_bouwlagen", computed)
	case aantal != computed:
		v.warn("aantal_bouwlagen_mismatch", e, "aantal_bouwlagen", "computed_bouwlagen", computed)
	}
}

func (v *BAGValidator) validateGebruiksdoel(e core.Entity) {
	doelen := omschrijvingen(e["gebruiksdoel"])

	for _, d := range doelen {
		if !slices.Contains(gebruiksdoelen, d) {
			v.warn("gebruiksdoel_domain", e, "gebruiksdoel", "gebruiksdoel_domain", d)
			break
		}
	}

	seen := make(map[string]struct{}, len(doelen))
	for _, d := range doelen {
		if _, dup := seen[d]; dup {
			v.warn("gebruiksdoel_duplicate", e, "gebruiksdoel", "gebruiksdoel", d)
			break
		}
		seen[d] = struct{}{}
	}

	isComplex := false
	for _, attr := range slices.Sorted(maps.Keys(gebruiksdoelPlus)) {
		plus := omschrijvingen(e[attr])
		if len(plus) == 0 {
			continue
		}
		if base := gebruiksdoelPlus[attr]; !slices.Contains(doelen, base) {
			v.warn(attr+"_without_base", e, attr, "gebruiksdoel", base)
		}
		for _, p := range plus {
			if strings.Contains(strings.ToLower(p), "complex") {
				isComplex = true
			}
		}
	}

	filled := e["aantal_eenheden_complex"] != nil
	switch {
	case isComplex && !filled:
		v.warn("aantal_eenheden_complex_missing", e, "aantal_eenheden_complex", "gebruiksdoel_plus", "complex")
	case !isComplex && filled:
		v.warn("aantal_eenheden_complex_not_allowed", e, "aantal_eenheden_complex", "gebruiksdoel_plus", "complex")
	}
}

// omschrijvingen returns the descriptions of a purpose value: a string, a
// {code, omschrijving} object or a list of either.
func omschrijvingen(v any) []string {
	if v == nil {
		return nil
	}
	items, ok := core.AsList(v)
	if !ok {
		items = []any{v}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case nil:
		case string:
			out = append(out, t)
		default:
			if m, ok := core.AsMap(t); ok {
				if d, ok := m["omschrijving"]; ok && d != nil {
					out = append(out, fmt.Sprint(d))
				}
			}
		}
	}
	return out
}
