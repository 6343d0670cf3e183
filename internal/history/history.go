// Package history stores settled analyses so past cases can be listed and
// compared. PostgreSQL (with pgvector) and SQLite backends are provided.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/crestline/pkg/analysis"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// vectorDims is the length of the measurement vector stored per entry.
const vectorDims = 4

// Entry is one applied analysis outcome: a result or a service error.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	ImageID   uuid.UUID       `json:"image_id"`
	ImageName string          `json:"image_name"`
	Mode      analysis.Mode   `json:"mode"`
	Zoom      float64         `json:"zoom"`
	Result    analysis.Result `json:"-"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Match is an entry with its distance to a reference entry.
type Match struct {
	Entry
	Distance float64 `json:"distance"`
}

// Store persists history entries.
type Store interface {
	Save(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// Similar returns measured entries closest to id by measurement vector.
	Similar(ctx context.Context, id uuid.UUID, limit int) ([]Match, error)
	Close() error
}

// Open picks a backend from dsn: postgres:// and postgresql:// URLs use
// PostgreSQL, sqlite:// URLs and bare paths use SQLite.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return nil, errors.New("history: empty DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if err := MigratePostgres(dsn); err != nil {
			return nil, err
		}
		return NewPostgres(ctx, dsn)
	default:
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// prepare fills defaults before an insert.
func prepare(e *Entry) error {
	if e == nil {
		return errors.New("history: nil entry")
	}
	if !e.Mode.Valid() {
		return fmt.Errorf("history: invalid mode %q", e.Mode)
	}
	if e.Result == nil && e.Error == "" {
		return errors.New("history: entry has neither result nor error")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// encodeResult returns the tagged JSON body and measurement vector of e.
func encodeResult(e *Entry) ([]byte, []float64, error) {
	if e.Result == nil {
		return nil, nil, nil
	}
	body, err := analysis.Encode(e.Result)
	if err != nil {
		return nil, nil, err
	}
	vec, _ := analysis.Vector(e.Result)
	return body, vec, nil
}

func decodeResult(body []byte, e *Entry) error {
	if len(body) == 0 {
		return nil
	}
	r, err := analysis.DecodeTagged(body)
	if err != nil {
		return fmt.Errorf("decode stored result: %w", err)
	}
	e.Result = r
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
