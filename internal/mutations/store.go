package mutations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Store persists the mutation import history.
type Store interface {
	// GetLast returns the latest import of a collection, or nil when there
	// is none.
	GetLast(ctx context.Context, catalogue, collection, application string) (*MutationImport, error)
	// Save inserts the import when its ID is zero and updates it otherwise.
	Save(ctx context.Context, m *MutationImport) error
}

// MemoryStore keeps the history in memory. It serves tests and runs
// without a database.
type MemoryStore struct {
	mu      sync.Mutex
	imports []MutationImport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetLast(_ context.Context, catalogue, collection, application string) (*MutationImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.imports) - 1; i >= 0; i-- {
		m := s.imports[i]
		if m.Catalogue == catalogue && m.Collection == collection && m.Application == application {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Save(_ context.Context, m *MutationImport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		m.ID = int64(len(s.imports) + 1)
		s.imports = append(s.imports, *m)
		return nil
	}
	for i := range s.imports {
		if s.imports[i].ID == m.ID {
			s.imports[i] = *m
			return nil
		}
	}
	return fmt.Errorf("mutation import %d not found", m.ID)
}

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the history in the mutation_import table.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createMutationImportTable = `
CREATE TABLE IF NOT EXISTS mutation_import (
	id          BIGSERIAL PRIMARY KEY,
	catalogue   TEXT NOT NULL,
	collection  TEXT NOT NULL,
	application TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	filename    TEXT NOT NULL,
	mode        TEXT NOT NULL
)`

// EnsureSchema creates the history table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createMutationImportTable); err != nil {
		return fmt.Errorf("create mutation_import: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLast(ctx context.Context, catalogue, collection, application string) (*MutationImport, error) {
	query := `
		SELECT id, catalogue, collection, application, started_at, ended_at, filename, mode
		FROM mutation_import
		WHERE catalogue = $1 AND collection = $2 AND application = $3
		ORDER BY started_at DESC, id DESC
		LIMIT 1`

	var (
		m       MutationImport
		started pgtype.Timestamptz
		ended   pgtype.Timestamptz
		mode    string
	)
	err := s.db.QueryRow(ctx, query, catalogue, collection, application).Scan(
		&m.ID, &m.Catalogue, &m.Collection, &m.Application, &started, &ended, &m.Filename, &mode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last mutation import: %w", err)
	}

	m.StartedAt = started.Time
	if ended.Valid {
		t := ended.Time
		m.EndedAt = &t
	}
	m.Mode = Mode(mode)
	return &m, nil
}

func (s *PostgresStore) Save(ctx context.Context, m *MutationImport) error {
	ended := pgtype.Timestamptz{}
	if m.EndedAt != nil {
		ended = pgtype.Timestamptz{Time: *m.EndedAt, Valid: true}
	}
	started := pgtype.Timestamptz{Time: m.StartedAt, Valid: !m.StartedAt.IsZero()}
	if !started.Valid {
		started = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}

	if m.ID == 0 {
		query := `
			INSERT INTO mutation_import (catalogue, collection, application, started_at, ended_at, filename, mode)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`
		err := s.db.QueryRow(ctx, query,
			m.Catalogue, m.Collection, m.Application, started, ended, m.Filename, string(m.Mode),
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("insert mutation import: %w", err)
		}
		return nil
	}

	query := `
		UPDATE mutation_import
		SET started_at = $2, ended_at = $3, filename = $4, mode = $5
		WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, m.ID, started, ended, m.Filename, string(m.Mode))
	if err != nil {
		return fmt.Errorf("update mutation import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mutation import %d not found", m.ID)
	}
	return nil
}
