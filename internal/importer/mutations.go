package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/logging"
	"github.com/JonMunkholm/gobimport/internal/mutations"
)

// Runner runs one import.
type Runner interface {
	Run(ctx context.Context, ds *core.Dataset, mode mutations.Mode) (*Message, error)
}

// MutationsImport runs the imports of mutation fed datasets. Each run
// imports the next file of the sequence and records it in the history.
type MutationsImport struct {
	runner Runner
	store  mutations.Store
	opts   mutations.Options
	now    func() time.Time
}

func NewMutationsImport(runner Runner, store mutations.Store, opts mutations.Options) *MutationsImport {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MutationsImport{runner: runner, store: store, opts: opts, now: now}
}

// Run imports the next file. It returns an error wrapping
// mutations.ErrNotYetAvailable when that file is not published yet; no
// history is written in that case. A failed import keeps its record open,
// so the next run restarts it.
func (m *MutationsImport) Run(ctx context.Context, ds *core.Dataset) (*Message, error) {
	h, err := mutations.HandlerFor(ds.Source.Application, m.opts)
	if err != nil {
		return nil, err
	}
	last, err := m.store.GetLast(ctx, ds.Catalogue, ds.Entity, ds.Source.Application)
	if err != nil {
		return nil, err
	}
	decision, err := h.HandleImport(ctx, last, ds)
	if err != nil {
		return nil, err
	}

	rec := decision.Import
	restart := last != nil && !last.Ended() && last.Filename == rec.Filename
	if restart {
		rec.ID = last.ID
	}
	rec.StartedAt = m.now()
	rec.EndedAt = nil
	if err := m.store.Save(ctx, &rec); err != nil {
		return nil, err
	}

	logging.ForImport(ctx, ds.Catalogue, ds.Entity, ds.Source.Name).Info("mutation import",
		"mode", rec.Mode,
		"filename", rec.Filename,
		"restart", restart,
	)

	msg, err := m.runner.Run(ctx, ds.WithReadConfig(decision.ReadConfig), rec.Mode)
	if err != nil {
		return msg, err
	}
	ended := m.now()
	rec.EndedAt = &ended
	if err := m.store.Save(ctx, &rec); err != nil {
		return msg, fmt.Errorf("mark import ended: %w", err)
	}
	return msg, nil
}

// State returns the last recorded import of a collection and whether the
// next one can start now.
func (m *MutationsImport) State(ctx context.Context, catalogue, collection, application string) (*mutations.MutationImport, bool, error) {
	h, err := mutations.HandlerFor(application, m.opts)
	if err != nil {
		return nil, false, err
	}
	last, err := m.store.GetLast(ctx, catalogue, collection, application)
	if err != nil {
		return nil, false, err
	}
	ds := &core.Dataset{
		Catalogue: catalogue,
		Entity:    collection,
		Source:    core.Source{Application: application},
	}
	next, err := mutations.HaveNext(ctx, h, last, ds)
	if err != nil {
		return last, false, err
	}
	return last, next, nil
}

// NewWaitBackOff returns the backoff WaitForNext uses by default: retries
// with exponential delay for at most maxWait.
func NewWaitBackOff(maxWait time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.MaxInterval = 15 * time.Minute
	b.MaxElapsedTime = maxWait
	return b
}

// WaitForNext runs the next import, retrying while its file is not yet
// available. Other errors end the wait immediately.
func (m *MutationsImport) WaitForNext(ctx context.Context, ds *core.Dataset, b backoff.BackOff) (*Message, error) {
	logger := logging.ForImport(ctx, ds.Catalogue, ds.Entity, ds.Source.Name)

	var msg *Message
	op := func() error {
		var err error
		msg, err = m.Run(ctx, ds)
		if err != nil && !errors.Is(err, mutations.ErrNotYetAvailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Info("next import not available yet", "reason", err, "retry_in", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return msg, err
	}
	return msg, nil
}
