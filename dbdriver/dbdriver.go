// Package dbdriver implements the abstract DB Interface Contract (spec
// C8): connect/disconnect/execute/query plus a dialect tag upper layers
// use to choose optimized statement forms.
package dbdriver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Dialect tags a driver by the SQL variant it speaks, mirroring the
// original's backend-tag enum (spec: "MySQL, PostgreSQL, SQLite").
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectPostgres
	DialectMySQL
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by any operation attempted before Connect or
// after Disconnect.
var ErrNotConnected = errors.New("dbdriver: not connected")

// ErrUnsupportedDialect marks a dialect-specific SQL form that has no
// implementation in this driver set (spec §4.5: the MySQL-optimized
// cascade-delete form is deliberately unimplemented — only Postgres
// dialects are in scope here).
var ErrUnsupportedDialect = errors.New("dbdriver: unsupported dialect")

// Interface is the abstract DB contract every archive layer is written
// against, so dbarchive never imports pgx directly.
type Interface interface {
	Connect(ctx context.Context, dsn string) error
	Disconnect() error
	IsConnected() bool

	// Exec runs a statement with no result set and reports the number of
	// affected rows.
	Exec(ctx context.Context, sql string, args ...any) (rowsAffected int64, err error)

	// Query runs a statement returning zero or more rows. Callers must
	// close the returned pgx.Rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// QueryRow runs a statement returning at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// LastInsertID reports the OID assigned by the most recent INSERT
	// into table. Postgres has no native lastInsertId; implementations
	// fetch it with a currval-style lookup on the table's sequence, and
	// dbarchive calls it right after each INSERT.
	LastInsertID(ctx context.Context, table string) (int64, error)

	// Escape doubles single quotes in s for interpolation inside a
	// single-quoted SQL string literal (LastInsertID uses it for the
	// table name it passes to the sequence lookup). It does not quote
	// identifiers. Parameterized values should always use Exec/Query args
	// instead.
	Escape(s string) string

	Dialect() Dialect
}

// Tx is Interface plus commit/rollback, handed out by Transactor.BeginTx.
// The original abstract contract exposes start/commit/rollback directly;
// this is split into its own interface so drivers that can't support
// transactions (none currently) aren't forced to implement no-ops.
type Tx interface {
	Interface
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactor is implemented by drivers that can hand out a transaction-
// scoped Interface, used by dbarchive's opt-in transactional DeleteTree.
type Transactor interface {
	BeginTx(ctx context.Context) (Tx, error)
}
