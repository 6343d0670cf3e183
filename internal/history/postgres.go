package history

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// PostgresStore keeps history in PostgreSQL. Similar is answered by pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to an already migrated database.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// MigratePostgres runs the PostgreSQL migrations.
func MigratePostgres(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const entryColumns = `id, image_id, image_name, mode, zoom, result, error, created_at`

func scanPostgresEntry(row pgx.Row, extra ...any) (*Entry, error) {
	var e Entry
	var body []byte
	dest := append([]any{&e.ID, &e.ImageID, &e.ImageName, &e.Mode, &e.Zoom, &body, &e.Error, &e.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := decodeResult(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save inserts e, assigning its ID and timestamp when unset.
func (s *PostgresStore) Save(ctx context.Context, e *Entry) error {
	if err := prepare(e); err != nil {
		return err
	}
	body, vec, err := encodeResult(e)
	if err != nil {
		return err
	}

	var embedding any
	if vec != nil {
		embedding = pgvector.NewVector(float32s(vec))
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO history_entries (id, image_id, image_name, mode, zoom, result, error, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ImageID, e.ImageName, string(e.Mode), e.Zoom, body, e.Error, embedding, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM history_entries ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Get returns the entry with the given ID or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM history_entries WHERE id = $1`,
		id,
	)
	return scanPostgresEntry(row)
}

// Similar ranks entries of the same mode by Euclidean distance between
// measurement vectors. A reference without measurements has no matches.
func (s *PostgresStore) Similar(ctx context.Context, id uuid.UUID, limit int) ([]Match, error) {
	var mode string
	var embedding *pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT mode, embedding FROM history_entries WHERE id = $1`, id,
	).Scan(&mode, &embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if embedding == nil {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+`, embedding <-> $1 AS distance
		 FROM history_entries
		 WHERE id <> $2 AND mode = $3 AND embedding IS NOT NULL
		 ORDER BY distance, created_at DESC
		 LIMIT $4`,
		*embedding, id, mode, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var dist float64
		e, err := scanPostgresEntry(rows, &dist)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Entry: *e, Distance: dist})
	}
	return matches, rows.Err()
}

func float32s(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
