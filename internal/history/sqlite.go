package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/pkg/analysis"
	"gonum.org/v1/gonum/floats"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in a local SQLite file. Similar is ranked in
// process.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Not closed: closing the migrator closes db.
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts e, assigning its ID and timestamp when unset.
func (s *SQLiteStore) Save(ctx context.Context, e *Entry) error {
	if err := prepare(e); err != nil {
		return err
	}
	body, vec, err := encodeResult(e)
	if err != nil {
		return err
	}

	var result, embedding sql.NullString
	if body != nil {
		result = sql.NullString{String: string(body), Valid: true}
	}
	if vec != nil {
		raw, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		embedding = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history_entries (id, image_id, image_name, mode, zoom, result, error, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.ImageID.String(), e.ImageName, string(e.Mode), e.Zoom,
		result, e.Error, embedding, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

const sqliteColumns = `id, image_id, image_name, mode, zoom, result, error, embedding, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSQLiteEntry returns the entry and its stored vector, nil when the
// entry has no measurements.
func scanSQLiteEntry(row rowScanner) (*Entry, []float64, error) {
	var (
		e                 Entry
		id, imageID, mode string
		result, embedding sql.NullString
		created           int64
	)
	err := row.Scan(&id, &imageID, &e.ImageName, &mode, &e.Zoom, &result, &e.Error, &embedding, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, nil, fmt.Errorf("parse entry id: %w", err)
	}
	if e.ImageID, err = uuid.Parse(imageID); err != nil {
		return nil, nil, fmt.Errorf("parse image id: %w", err)
	}
	e.Mode = analysis.Mode(mode)
	e.CreatedAt = time.Unix(0, created).UTC()

	if result.Valid {
		if err := decodeResult([]byte(result.String), &e); err != nil {
			return nil, nil, err
		}
	}

	var vec []float64
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &vec); err != nil {
			return nil, nil, fmt.Errorf("decode stored vector: %w", err)
		}
	}
	return &e, vec, nil
}

// List returns the newest entries first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM history_entries ORDER BY created_at DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, _, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Get returns the entry with the given ID or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM history_entries WHERE id = ?`, id.String())
	e, _, err := scanSQLiteEntry(row)
	return e, err
}

// Similar ranks entries of the same mode by Euclidean distance between
// measurement vectors. A reference without measurements has no matches.
func (s *SQLiteStore) Similar(ctx context.Context, id uuid.UUID, limit int) ([]Match, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM history_entries WHERE id = ?`, id.String())
	ref, refVec, err := scanSQLiteEntry(row)
	if err != nil {
		return nil, err
	}
	if len(refVec) != vectorDims {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM history_entries
		 WHERE id <> ? AND mode = ? AND embedding IS NOT NULL`,
		id.String(), string(ref.Mode),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		e, vec, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		if len(vec) != vectorDims {
			continue
		}
		matches = append(matches, Match{Entry: *e, Distance: floats.Distance(refVec, vec, 2)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if n := clampLimit(limit); len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}
