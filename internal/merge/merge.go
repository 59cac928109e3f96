// Package merge combines a secondary dataset into the primary entity stream
// of an import.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// ErrUnknownMergeStrategy is returned for a merge id without strategy.
var ErrUnknownMergeStrategy = errors.New("unknown merge strategy")

// WriteFunc writes an entity to the import sink.
type WriteFunc func(core.Entity) error

// EntitySource produces the converted entities of a dataset.
type EntitySource interface {
	Entities(ctx context.Context, ds *core.Dataset, fn func(core.Entity) error) error
}

// Merger buffers the secondary entities of one import, grouped by join key.
// A nil merge config yields a merger that never matches.
type Merger struct {
	ds       *core.Dataset
	cfg      *core.MergeConfig
	strategy Strategy
	logger   *slog.Logger

	groups map[string][]core.Entity
	order  []string
	keys   map[string]struct{}
}

// New creates the merger for a dataset.
func New(ds *core.Dataset, logger *slog.Logger) (*Merger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Merger{
		ds:     ds,
		cfg:    ds.Source.Merge,
		logger: logger,
		groups: make(map[string][]core.Entity),
		keys:   make(map[string]struct{}),
	}
	if m.cfg == nil {
		return m, nil
	}
	s, ok := strategies[m.cfg.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMergeStrategy, m.cfg.ID)
	}
	m.strategy = s
	return m, nil
}

// Enabled reports whether the dataset declares a merge.
func (m *Merger) Enabled() bool {
	return m.cfg != nil
}

// Prepare loads the secondary dataset and buffers all of its entities.
func (m *Merger) Prepare(ctx context.Context, src EntitySource) error {
	if !m.Enabled() {
		return nil
	}
	secondary, err := core.LoadDataset(m.ds.ResolvePath(m.cfg.Dataset))
	if err != nil {
		return fmt.Errorf("load merge dataset: %w", err)
	}

	m.logger.Info("collecting merge entities", "merge_dataset", secondary.Name(), "on", m.cfg.On)
	err = src.Entities(ctx, secondary, func(e core.Entity) error {
		key := m.key(e)
		if _, exists := m.groups[key]; !exists {
			m.order = append(m.order, key)
		}
		m.groups[key] = append(m.groups[key], e)
		m.keys[key] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read merge dataset %s: %w", secondary.Name(), err)
	}
	m.logger.Info("merge entities collected", "groups", len(m.groups))
	return nil
}

// Merge applies the merge strategy when the entity matches a buffered group.
// The group is consumed. The entity itself is not written.
func (m *Merger) Merge(e core.Entity, write WriteFunc) error {
	if !m.Enabled() {
		return nil
	}
	key := m.key(e)
	group, ok := m.groups[key]
	if !ok {
		return nil
	}
	delete(m.groups, key)
	return m.strategy(e, group, *m.cfg, write)
}

// Finish writes every buffered entity that was never matched, in the order
// the groups were read.
func (m *Merger) Finish(write WriteFunc) error {
	for _, key := range m.order {
		group, ok := m.groups[key]
		if !ok {
			continue
		}
		for _, e := range group {
			if err := write(e); err != nil {
				return err
			}
		}
		delete(m.groups, key)
	}
	m.order = nil
	return nil
}

// IsMerged reports whether the entity's join key has or had a buffered
// group.
func (m *Merger) IsMerged(e core.Entity) bool {
	if !m.Enabled() {
		return false
	}
	_, ok := m.keys[m.key(e)]
	return ok
}

func (m *Merger) key(e core.Entity) string {
	return fmt.Sprint(e[m.cfg.On])
}
