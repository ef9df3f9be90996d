// Package store is the SQLite persistence layer for pagewatch: competitors,
// snapshots, snapshot diffs, and alerts.
//
// The store enforces the versioning invariants that matter at every
// observable point: at most one current snapshot per competitor (the
// mark-not-current + insert pair runs in one transaction, joined by the
// incoming diff when there is one) and uniqueness of
// (competitor_id, version_number), surfaced as ErrVersionConflict.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/pagewatch/pagewatch/internal/idgen"
)

// ErrVersionConflict is returned when another snapshot with the same
// (competitor_id, version_number) already exists.
var ErrVersionConflict = errors.New("store: snapshot version conflict")

// Store wraps the pagewatch database.
type Store struct {
	DB       *sql.DB
	compress bool
	newID    idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithCompression toggles gzip framing of stored full HTML. Default: on.
func WithCompression(on bool) Option {
	return func(s *Store) { s.compress = on }
}

// WithIDGenerator sets a custom ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, compress: true, newID: idgen.Default}
	for _, o := range opts {
		o(s)
	}
	return s
}

// execContext is satisfied by *sql.DB and *sql.Tx so writes can run either
// standalone or inside a larger transaction.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// isUniqueViolation reports whether err is a SQLite uniqueness error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
