package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// ErrUnknownEnricher is returned for an enrich id without registration.
var ErrUnknownEnricher = errors.New("unknown enricher")

// Enricher fills a column of raw rows before conversion.
type Enricher interface {
	// Applies reports whether the enricher can serve imports of
	// catalogue/entity.
	Applies(catalogue, entity string) bool
	// Enrich sets column on row.
	Enrich(row core.Row, column string) error
}

var (
	enrichers   = make(map[string]Enricher)
	enrichersMu sync.RWMutex
)

func init() {
	RegisterEnricher("geldigheid", geldigheid{})
}

// RegisterEnricher adds an enricher under id.
// Panics if the id is already registered.
func RegisterEnricher(id string, e Enricher) {
	enrichersMu.Lock()
	defer enrichersMu.Unlock()

	if _, exists := enrichers[id]; exists {
		panic(fmt.Sprintf("enricher already registered: %s", id))
	}
	enrichers[id] = e
}

// Enrichers returns the registered enricher ids, sorted.
func Enrichers() []string {
	enrichersMu.RLock()
	defer enrichersMu.RUnlock()
	return slices.Sorted(maps.Keys(enrichers))
}

type boundEnricher struct {
	id     string
	column string
	e      Enricher
}

// enrichment runs the enrichers declared by one dataset, in column order.
type enrichment []boundEnricher

func newEnrichment(ds *core.Dataset, logger *slog.Logger) (enrichment, error) {
	enrichersMu.RLock()
	defer enrichersMu.RUnlock()

	var out enrichment
	for _, column := range slices.Sorted(maps.Keys(ds.Source.Enrich)) {
		id := ds.Source.Enrich[column]
		e, ok := enrichers[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s (column %s)", ErrUnknownEnricher, id, column)
		}
		if !e.Applies(ds.Catalogue, ds.Entity) {
			logger.Warn("enricher does not apply, skipped", "enricher", id, "column", column)
			continue
		}
		out = append(out, boundEnricher{id: id, column: column, e: e})
	}
	return out, nil
}

func (en enrichment) enrich(row core.Row) error {
	for _, b := range en {
		if err := b.e.Enrich(row, b.column); err != nil {
			return fmt.Errorf("enrich %s with %s: %w", b.column, b.id, err)
		}
	}
	return nil
}

// geldigheid completes the validity columns of stateful sources. The
// enriched column holds the date that begin_geldigheid falls back to.
type geldigheid struct{}

func (geldigheid) Applies(_, _ string) bool {
	return true
}

func (geldigheid) Enrich(row core.Row, column string) error {
	if blank(row[core.FieldStartValidity]) {
		row[core.FieldStartValidity] = row[column]
	}
	if v, ok := row[core.FieldEndValidity]; ok && blank(v) {
		row[core.FieldEndValidity] = nil
	}
	return nil
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
