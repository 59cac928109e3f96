package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/JonMunkholm/gobimport/internal/connector"
	"github.com/JonMunkholm/gobimport/internal/core"
)

// ErrUnknownConversion is returned for an inject conversion other than
// "=" or "+".
var ErrUnknownConversion = errors.New("unknown inject conversion")

// Inject conversions.
const (
	ConvertReplace = "="
	ConvertAdd     = "+"
)

// Injector patches raw rows with the rows of a fixed data file, matched on
// one key column.
type Injector struct {
	on          string
	conversions map[string]string
	patches     map[string]core.Row
}

// NewInjector reads the inject file of ds. It returns nil when the dataset
// declares no inject.
func NewInjector(ctx context.Context, ds *core.Dataset, deps connector.Deps) (*Injector, error) {
	cfg := ds.Source.Inject
	if cfg == nil {
		return nil, nil
	}
	if cfg.File == "" || cfg.On == "" {
		return nil, errors.New("inject requires file and on")
	}
	for col, conv := range cfg.Conversions {
		if conv != ConvertReplace && conv != ConvertAdd {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownConversion, conv, col)
		}
	}

	patchDS := &core.Dataset{
		Catalogue: ds.Catalogue,
		Entity:    ds.Entity,
		Source: core.Source{
			Name:   "inject",
			Type:   core.SourceFile,
			Config: map[string]any{"file_name": ds.ResolvePath(cfg.File)},
		},
	}
	r, err := connector.Open(ctx, patchDS, connector.Deps{Logger: deps.Logger})
	if err != nil {
		return nil, fmt.Errorf("inject: %w", err)
	}
	defer r.Close()

	inj := &Injector{
		on:          cfg.On,
		conversions: cfg.Conversions,
		patches:     make(map[string]core.Row),
	}
	for row, err := range r.Rows(ctx) {
		if err != nil {
			return nil, fmt.Errorf("inject: %w", err)
		}
		key := row[cfg.On]
		if key == nil {
			continue
		}
		inj.patches[fmt.Sprint(key)] = row
	}
	return inj, nil
}

// Len returns the number of patch rows.
func (inj *Injector) Len() int {
	return len(inj.patches)
}

// Inject applies the matching patch row, if any, to row. Empty patch cells
// leave the row value alone.
func (inj *Injector) Inject(row core.Row) error {
	key, ok := row[inj.on]
	if !ok || key == nil {
		return nil
	}
	patch, ok := inj.patches[fmt.Sprint(key)]
	if !ok {
		return nil
	}
	for col, value := range patch {
		if col == inj.on || value == nil {
			continue
		}
		if inj.conversions[col] != ConvertAdd {
			row[col] = value
			continue
		}
		sum, err := add(row[col], value)
		if err != nil {
			return fmt.Errorf("inject %s for %s=%v: %w", col, inj.on, key, err)
		}
		row[col] = sum
	}
	return nil
}

// add sums two numeric values; a missing row value counts as zero.
func add(current, delta any) (string, error) {
	d, err := strconv.ParseFloat(fmt.Sprint(delta), 64)
	if err != nil {
		return "", err
	}
	if current == nil {
		return strconv.FormatFloat(d, 'f', -1, 64), nil
	}
	c, err := strconv.ParseFloat(fmt.Sprint(current), 64)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(c+d, 'f', -1, 64), nil
}
