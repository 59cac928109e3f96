package connector

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// fileReader reads a local CSV or JSON file.
type fileReader struct {
	ds     *core.Dataset
	path   string
	file   *os.File
	count  *countingReader
	logger *slog.Logger
}

func openFile(ds *core.Dataset, deps Deps) (*fileReader, error) {
	name := ds.Source.ConfigString("file_name")
	if name == "" {
		return nil, errors.New("no file_name configured")
	}
	p := name
	switch {
	case filepath.IsAbs(name):
	case deps.DataDir != "":
		p = filepath.Join(deps.DataDir, name)
	default:
		p = ds.ResolvePath(name)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return &fileReader{
		ds:     ds,
		path:   p,
		file:   f,
		count:  &countingReader{r: f},
		logger: deps.logger(),
	}, nil
}

func (r *fileReader) Rows(_ context.Context) iter.Seq2[core.Row, error] {
	return decodeRows(r.count, formatOf(r.ds, r.path), r.ds)
}

func (r *fileReader) Close() error {
	r.logger.Debug("file source closed", "path", r.path, "bytes_read", r.count.n)
	return r.file.Close()
}

// readCloserRows adapts a stream that is already open to Reader.
type readCloserRows struct {
	body   io.ReadCloser
	format string
	ds     *core.Dataset
}

func (r *readCloserRows) Rows(_ context.Context) iter.Seq2[core.Row, error] {
	return decodeRows(r.body, r.format, r.ds)
}

func (r *readCloserRows) Close() error {
	return r.body.Close()
}
