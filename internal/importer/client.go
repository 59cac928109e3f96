// Package importer runs imports: it reads the rows of a dataset source,
// patches and enriches them, converts them to entities, merges a secondary
// dataset, validates the result and writes it to a sink. A result message
// summarises every run.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/JonMunkholm/gobimport/internal/connector"
	"github.com/JonMunkholm/gobimport/internal/convert"
	"github.com/JonMunkholm/gobimport/internal/core"
	"github.com/JonMunkholm/gobimport/internal/entityvalidate"
	"github.com/JonMunkholm/gobimport/internal/logging"
	"github.com/JonMunkholm/gobimport/internal/merge"
	"github.com/JonMunkholm/gobimport/internal/mutations"
	"github.com/JonMunkholm/gobimport/internal/quality"
	"github.com/JonMunkholm/gobimport/internal/validate"
)

// Options configure a Client.
type Options struct {
	// Deps are the clients source readers are built from.
	Deps connector.Deps

	// Checks are the declarative QA checks. Nil runs no attribute checks.
	Checks validate.Checks

	// OutputDir receives the contents files when Mongo is nil.
	OutputDir string

	// Mongo, when set, receives the contents instead of OutputDir.
	Mongo *mongo.Database

	// Publisher receives the result message of successful imports.
	Publisher Publisher

	Now func() time.Time
}

// Client runs imports. It is safe for concurrent use; every run has its
// own pipeline state.
type Client struct {
	opts Options
}

func NewClient(opts Options) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{opts: opts}
}

// Run imports ds. Mode is the mutation mode of the run, empty for plain
// imports. The returned message is non-nil whenever the contents were
// written, also when validation failed the import.
func (c *Client) Run(ctx context.Context, ds *core.Dataset, mode mutations.Mode) (*Message, error) {
	processID := uuid.NewString()
	logger := logging.ForImport(ctx, ds.Catalogue, ds.Entity, ds.Source.Name).With("process_id", processID)
	start := c.opts.Now()
	logger.Info("import started", "application", ds.Source.Application, "mode", mode)

	msg, err := c.run(ctx, ds, mode, processID, logger)
	if err != nil {
		quality.ImportsTotal.WithLabelValues(ds.Catalogue, ds.Entity, "failed").Inc()
		logger.Error("import failed", "error", err, "duration", time.Since(start))
		return msg, fmt.Errorf("import %s from %s (%s): %w", ds.Name(), ds.Source.Name, ds.Source.Application, err)
	}
	quality.ImportsTotal.WithLabelValues(ds.Catalogue, ds.Entity, "ok").Inc()
	logger.Info("import completed",
		"records", msg.Summary["num_records"],
		"contents", msg.ContentsRef,
		"duration", time.Since(start),
	)
	return msg, nil
}

func (c *Client) run(ctx context.Context, ds *core.Dataset, mode mutations.Mode, processID string, logger *slog.Logger) (*Message, error) {
	p, err := c.newPipeline(ctx, ds, logger)
	if err != nil {
		return nil, err
	}
	merger, err := merge.New(ds, logger)
	if err != nil {
		return nil, err
	}
	if err := merger.Prepare(ctx, c); err != nil {
		return nil, err
	}

	reporter := quality.NewReporter(logger, ds.Catalogue, ds.Entity)
	validator := validate.New(ds, c.opts.Checks, reporter)
	ev := entityvalidate.New(ds, reporter)
	if names := ev.Names(); len(names) > 0 {
		logger.Debug("entity validators selected", "validators", names)
	}

	sink, err := c.openSink(ds, processID)
	if err != nil {
		return nil, err
	}

	records := 0
	write := func(e core.Entity) error {
		validator.Validate(e)
		ev.Validate(e, merger.IsMerged(e))
		if err := sink.Write(ctx, e); err != nil {
			return err
		}
		records++
		return nil
	}

	rows, err := c.each(ctx, ds, p, logger, func(e core.Entity) error {
		if err := merger.Merge(e, write); err != nil {
			return err
		}
		return write(e)
	})
	if err == nil {
		err = merger.Finish(write)
	}
	if cerr := sink.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	quality.RecordsTotal.WithLabelValues(ds.Catalogue, ds.Entity).Add(float64(records))

	var result *multierror.Error
	counters, err := validator.Result()
	if err != nil {
		result = multierror.Append(result, err)
	}
	if err := ev.Result(); err != nil {
		result = multierror.Append(result, err)
	}

	summary := map[string]int{
		"num_records":             records,
		"num_rows":                rows,
		"num_conversion_failures": p.converter.Failures(),
	}
	maps.Copy(summary, counters)
	maps.Copy(summary, reporter.Summary())

	msg := &Message{
		Header:      c.header(ds, mode, processID),
		Summary:     summary,
		ContentsRef: sink.Location(),
	}
	if err := result.ErrorOrNil(); err != nil {
		return msg, err
	}
	if c.opts.Publisher != nil {
		if err := c.opts.Publisher.Publish(ctx, msg); err != nil {
			return msg, fmt.Errorf("publish result: %w", err)
		}
	}
	return msg, nil
}

// Entities converts every row of ds. It feeds the merger with the
// secondary dataset of a merge.
func (c *Client) Entities(ctx context.Context, ds *core.Dataset, fn func(core.Entity) error) error {
	logger := logging.ForImport(ctx, ds.Catalogue, ds.Entity, ds.Source.Name)
	p, err := c.newPipeline(ctx, ds, logger)
	if err != nil {
		return err
	}
	_, err = c.each(ctx, ds, p, logger, fn)
	return err
}

func (c *Client) header(ds *core.Dataset, mode mutations.Mode, processID string) Header {
	if mode == "" {
		mode = mutations.ModeFull
	}
	return Header{
		ProcessID:   processID,
		Catalogue:   ds.Catalogue,
		Entity:      ds.Entity,
		Source:      ds.Source.Name,
		Application: ds.Source.Application,
		Version:     ds.Version,
		Timestamp:   c.opts.Now().UTC(),
		DependsOn:   ds.DependsOn,
		Enrich:      ds.Source.Enrich,
		Mode:        string(mode),
		Full:        mode != mutations.ModeMutations,
	}
}

func (c *Client) openSink(ds *core.Dataset, processID string) (connector.Sink, error) {
	if c.opts.Mongo != nil {
		name := ds.Catalogue + "_" + ds.Entity + "_" + processID
		return connector.NewMongoSink(c.opts.Mongo.Collection(name)), nil
	}
	return connector.NewFileSink(filepath.Join(c.opts.OutputDir, ds.Catalogue, ds.Entity, processID+".ndjson"))
}

// pipeline turns the raw rows of one dataset into entities.
type pipeline struct {
	injector   *Injector
	enrichment enrichment
	converter  *convert.Converter
}

func (c *Client) newPipeline(ctx context.Context, ds *core.Dataset, logger *slog.Logger) (*pipeline, error) {
	injector, err := NewInjector(ctx, ds, c.deps(logger))
	if err != nil {
		return nil, err
	}
	en, err := newEnrichment(ds, logger)
	if err != nil {
		return nil, err
	}
	conv, err := convert.New(ds, logger)
	if err != nil {
		return nil, err
	}
	return &pipeline{injector: injector, enrichment: en, converter: conv}, nil
}

func (p *pipeline) entity(row core.Row) (core.Entity, error) {
	if p.injector != nil {
		if err := p.injector.Inject(row); err != nil {
			return nil, err
		}
	}
	if err := p.enrichment.enrich(row); err != nil {
		return nil, err
	}
	return p.converter.Convert(row)
}

// each reads ds and passes every converted row to fn, in source order. It
// returns the number of rows read.
func (c *Client) each(ctx context.Context, ds *core.Dataset, p *pipeline, logger *slog.Logger, fn func(core.Entity) error) (int, error) {
	r, err := connector.Open(ctx, ds, c.deps(logger))
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n := 0
	for row, err := range r.Rows(ctx) {
		if err != nil {
			return n, fmt.Errorf("read %s: %w", ds.Source.Name, err)
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		n++
		e, err := p.entity(row)
		if err != nil {
			return n, fmt.Errorf("row %d: %w", n, err)
		}
		if err := fn(e); err != nil {
			return n, err
		}
	}
	logger.Debug("source read", "rows", n)
	return n, nil
}

func (c *Client) deps(logger *slog.Logger) connector.Deps {
	d := c.opts.Deps
	d.Logger = logger
	return d
}
