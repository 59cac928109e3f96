package connector

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Querier is the subset of pgxpool.Pool used by the database reader.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// postgresReader runs the query of a database source.
type postgresReader struct {
	db    Querier
	query string
}

func newPostgresReader(ds *core.Dataset, deps Deps) (*postgresReader, error) {
	if deps.DB == nil {
		return nil, errors.New("no database configured")
	}
	q := ds.Source.QueryString()
	if q == "" {
		return nil, errors.New("database source without query")
	}
	return &postgresReader{db: deps.DB, query: q}, nil
}

func (r *postgresReader) Rows(ctx context.Context) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		rows, err := r.db.Query(ctx, r.query)
		if err != nil {
			yield(nil, fmt.Errorf("query: %w", err))
			return
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				yield(nil, fmt.Errorf("scan: %w", err))
				return
			}
			row := make(core.Row, len(fields))
			for i, fd := range fields {
				row[fd.Name] = plainValue(values[i])
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("query: %w", err))
		}
	}
}

func (r *postgresReader) Close() error {
	return nil
}

// plainValue turns driver values into row values. Numerics become decimal
// strings so no precision is lost before type construction.
func plainValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid || t.NaN {
			return nil
		}
		dv, err := t.Value()
		if err != nil {
			return nil
		}
		return dv
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	default:
		return v
	}
}
