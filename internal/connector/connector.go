// Package connector reads source rows from the supported source types and
// writes converted entities to the configured sinks.
//
// Readers are opened for one dataset and yield rows in source order:
//
//	r, err := connector.Open(ctx, ds, deps)
//	if err != nil { ... }
//	defer r.Close()
//	for row, err := range r.Rows(ctx) { ... }
package connector

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/elastic/go-elasticsearch/v7"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// ErrUnknownSourceType is returned for a source type without reader.
var ErrUnknownSourceType = errors.New("unknown source type")

// Reader yields the rows of one source.
type Reader interface {
	// Rows yields rows in source order. Iteration stops after the first
	// error.
	Rows(ctx context.Context) iter.Seq2[core.Row, error]
	Close() error
}

// Deps are the shared clients readers are built from. Only the client of
// the source type in use needs to be set.
type Deps struct {
	// DataDir is the base directory of relative file sources. When empty
	// they resolve against the dataset definition.
	DataDir string

	DB      Querier
	S3      s3iface.S3API
	Bucket  string
	Elastic *elasticsearch.Client
	HTTP    *http.Client
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) httpClient() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return http.DefaultClient
}

// Open connects the reader for the source of ds.
func Open(ctx context.Context, ds *core.Dataset, deps Deps) (Reader, error) {
	var (
		r   Reader
		err error
	)
	switch ds.Source.Type {
	case core.SourceFile, "":
		r, err = openFile(ds, deps)
	case core.SourceDatabase:
		r, err = newPostgresReader(ds, deps)
	case core.SourceObjectStore:
		r, err = openObject(ctx, ds, deps)
	case core.SourceElasticsearch:
		r, err = newElasticReader(ds, deps)
	case core.SourceZip:
		r, err = openZip(ctx, ds, deps)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSourceType, ds.Source.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s source %s: %w", ds.Source.Type, ds.Source.Name, err)
	}
	return r, nil
}
