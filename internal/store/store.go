package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/borsibaar/ledger/internal/db"
)

// Store is the SQL-backed persistence layer: catalog lookups, users, stations
// and the inventory ledger itself.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

// New wraps an open database of the given dialect.
func New(database *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: database, dialect: dialect}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// insert runs an INSERT and returns the generated id. PostgreSQL has no
// LastInsertId, so the id comes back through RETURNING instead.
func (s *Store) insert(ctx context.Context, qr querier, query string, args ...any) (int64, error) {
	if s.dialect == db.Postgres {
		var id int64
		err := qr.QueryRowContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}

	result, err := qr.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// inClause returns "(?, ?, ...)" with n placeholders and the ids as args.
func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func now() time.Time {
	return time.Now().UTC()
}
