package connector

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/JonMunkholm/gobimport/internal/core"
)

var defaultZipMembers = regexp.MustCompile(`(?i)\.csv$`)

// zipReader reads the CSV members of a zip archive, downloading it first
// when the location is a URL.
type zipReader struct {
	ds      *core.Dataset
	archive *zip.ReadCloser
	members []*zip.File
	tmpPath string
	logger  *slog.Logger
}

func openZip(ctx context.Context, ds *core.Dataset, deps Deps) (*zipReader, error) {
	location := ds.Source.ConfigString("download_location")
	if location == "" {
		return nil, errors.New("no download_location configured")
	}
	filter := defaultZipMembers
	if f := ds.Source.ConfigString("file_filter"); f != "" {
		re, err := regexp.Compile(f)
		if err != nil {
			return nil, fmt.Errorf("file_filter: %w", err)
		}
		filter = re
	}

	r := &zipReader{ds: ds, logger: deps.logger()}
	p := location
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		tmp, err := download(ctx, deps.httpClient(), location)
		if err != nil {
			return nil, err
		}
		r.tmpPath, p = tmp, tmp
	} else if deps.DataDir != "" && !filepath.IsAbs(location) {
		p = filepath.Join(deps.DataDir, location)
	}

	archive, err := zip.OpenReader(p)
	if err != nil {
		r.removeTmp()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r.archive = archive
	for _, f := range archive.File {
		if !f.FileInfo().IsDir() && filter.MatchString(f.Name) {
			r.members = append(r.members, f)
		}
	}
	slices.SortFunc(r.members, func(a, b *zip.File) int { return strings.Compare(a.Name, b.Name) })
	r.logger.Info("zip source opened", "location", location, "members", len(r.members))
	return r, nil
}

func download(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.CreateTemp("", "gobimport-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (r *zipReader) Rows(_ context.Context) iter.Seq2[core.Row, error] {
	delimiter := r.ds.Source.ConfigString("delimiter")
	encodingName := r.ds.Source.ConfigString("encoding")

	return func(yield func(core.Row, error) bool) {
		for _, member := range r.members {
			rc, err := member.Open()
			if err != nil {
				yield(nil, fmt.Errorf("open %s: %w", member.Name, err))
				return
			}
			stop := false
			for row, err := range csvRows(rc, delimiter, encodingName) {
				if err != nil {
					err = fmt.Errorf("%s: %w", member.Name, err)
				}
				if !yield(row, err) || err != nil {
					stop = true
					break
				}
			}
			rc.Close()
			if stop {
				return
			}
		}
	}
}

func (r *zipReader) Close() error {
	var err error
	if r.archive != nil {
		err = r.archive.Close()
	}
	r.removeTmp()
	return err
}

func (r *zipReader) removeTmp() {
	if r.tmpPath == "" {
		return
	}
	if err := os.Remove(r.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("remove downloaded archive", "path", r.tmpPath, "error", err)
	}
	r.tmpPath = ""
}
