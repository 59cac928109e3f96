package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	"github.com/JonMunkholm/gobimport/internal/core"
)

const (
	elasticBatchSize = 1000
	elasticScroll    = 5 * time.Minute
)

// elasticReader scrolls over all documents of an index matching an
// optional query. Each document source is one row.
type elasticReader struct {
	client *elasticsearch.Client
	index  string
	query  []byte
	logger *slog.Logger
}

func newElasticReader(ds *core.Dataset, deps Deps) (*elasticReader, error) {
	if deps.Elastic == nil {
		return nil, errors.New("no elasticsearch client configured")
	}
	index := ds.Source.ConfigString("index")
	if index == "" {
		return nil, errors.New("elasticsearch source without index")
	}

	body := map[string]any{"query": map[string]any{"match_all": map[string]any{}}}
	if q := ds.Source.ConfigString("query"); q != "" {
		var query map[string]any
		if err := json.Unmarshal([]byte(q), &query); err != nil {
			return nil, fmt.Errorf("parse query: %w", err)
		}
		body["query"] = query
	} else if len(ds.Source.Query) > 0 {
		var query map[string]any
		if err := json.Unmarshal([]byte(ds.Source.QueryString()), &query); err != nil {
			return nil, fmt.Errorf("parse query: %w", err)
		}
		body["query"] = query
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &elasticReader{client: deps.Elastic, index: index, query: raw, logger: deps.logger()}, nil
}

type scrollResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *elasticReader) Rows(ctx context.Context) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		size := elasticBatchSize
		res, err := esapi.SearchRequest{
			Index:  []string{r.index},
			Size:   &size,
			Scroll: elasticScroll,
			Body:   bytes.NewReader(r.query),
		}.Do(ctx, r.client)
		page, err := decodeScroll(res, err)
		if err != nil {
			yield(nil, fmt.Errorf("search %s: %w", r.index, err))
			return
		}
		scrollID := page.ScrollID
		defer func() { r.clearScroll(scrollID) }()

		for len(page.Hits.Hits) > 0 {
			for _, hit := range page.Hits.Hits {
				dec := json.NewDecoder(bytes.NewReader(hit.Source))
				dec.UseNumber()
				var row core.Row
				if err := dec.Decode(&row); err != nil {
					yield(nil, fmt.Errorf("decode document %s: %w", hit.ID, err))
					return
				}
				if !yield(row, nil) {
					return
				}
			}

			res, err := esapi.ScrollRequest{
				ScrollID: page.ScrollID,
				Scroll:   elasticScroll,
			}.Do(ctx, r.client)
			page, err = decodeScroll(res, err)
			if err != nil {
				yield(nil, fmt.Errorf("scroll %s: %w", r.index, err))
				return
			}
			scrollID = page.ScrollID
		}
	}
}

func decodeScroll(res *esapi.Response, err error) (*scrollResponse, error) {
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("%s: %s", res.Status(), strings.TrimSpace(string(msg)))
	}
	var page scrollResponse
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func (r *elasticReader) clearScroll(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := esapi.ClearScrollRequest{ScrollID: []string{id}}.Do(ctx, r.client)
	if err != nil {
		r.logger.Warn("clear scroll failed", "index", r.index, "error", err)
		return
	}
	res.Body.Close()
}

func (r *elasticReader) Close() error {
	return nil
}
