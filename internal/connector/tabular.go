package connector

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Formats of file-like sources.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
)

// formatOf returns the configured format, or the one implied by the file
// extension.
func formatOf(ds *core.Dataset, name string) string {
	if f := ds.Source.ConfigString("filetype"); f != "" {
		return strings.ToLower(f)
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	default:
		return FormatCSV
	}
}

// decodeRows parses r in the given format.
func decodeRows(r io.Reader, format string, ds *core.Dataset) iter.Seq2[core.Row, error] {
	switch format {
	case FormatCSV:
		return csvRows(r, ds.Source.ConfigString("delimiter"), ds.Source.ConfigString("encoding"))
	case FormatJSON:
		return jsonRows(r)
	case FormatNDJSON:
		return ndjsonRows(r)
	default:
		return failed(fmt.Errorf("unsupported file format %q", format))
	}
}

// csvRows yields one row per record keyed by the header. Empty cells are
// nil, as in every other source.
func csvRows(r io.Reader, delimiter, encodingName string) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		text, err := textReader(r, encodingName)
		if err != nil {
			yield(nil, err)
			return
		}
		cr := csv.NewReader(text)
		cr.ReuseRecord = true
		cr.FieldsPerRecord = -1
		if delimiter != "" {
			d := []rune(delimiter)
			if len(d) != 1 {
				yield(nil, fmt.Errorf("delimiter must be one character, got %q", delimiter))
				return
			}
			cr.Comma = d[0]
		}

		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read csv header: %w", err))
			return
		}
		columns := make([]string, len(header))
		for i, h := range header {
			columns[i] = strings.TrimSpace(h)
		}

		for {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read csv: %w", err))
				return
			}
			row := make(core.Row, len(columns))
			for i, col := range columns {
				if i < len(record) && record[i] != "" {
					row[col] = record[i]
				} else {
					row[col] = nil
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// jsonRows streams the objects of a top level JSON array.
func jsonRows(r io.Reader) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		dec := json.NewDecoder(bomSkipper(r))
		dec.UseNumber()

		tok, err := dec.Token()
		if err != nil {
			yield(nil, fmt.Errorf("read json: %w", err))
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			yield(nil, fmt.Errorf("read json: expected array, got %v", tok))
			return
		}
		for dec.More() {
			var row core.Row
			if err := dec.Decode(&row); err != nil {
				yield(nil, fmt.Errorf("read json: %w", err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// ndjsonRows yields one row per non-empty line.
func ndjsonRows(r io.Reader) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		sc := bufio.NewScanner(bomSkipper(r))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			b := sc.Bytes()
			if len(bytes.TrimSpace(b)) == 0 {
				continue
			}
			dec := json.NewDecoder(bytes.NewReader(b))
			dec.UseNumber()
			var row core.Row
			if err := dec.Decode(&row); err != nil {
				yield(nil, fmt.Errorf("read ndjson line %d: %w", line, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("read ndjson: %w", err))
		}
	}
}

func failed(err error) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		yield(nil, err)
	}
}
