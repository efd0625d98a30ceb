package dbdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"scnotify.dev/scmlog"
)

// Postgres is a single-connection driver grounded on db/postgres_pgx.go's
// PostgresDB wrapper. It is NOT safe for concurrent use: the broker
// processor that owns a Postgres instance must serialize all calls onto
// it itself (spec §5: "the DB interface is owned by the processor;
// concurrent access is undefined").
type Postgres struct {
	mu   sync.Mutex
	conn *pgx.Conn
	log  *scmlog.ContextLogger
}

// NewPostgres constructs an unconnected single-connection driver.
func NewPostgres() *Postgres {
	return &Postgres{log: scmlog.NewContextLogger(nil, map[string]any{"component": "dbdriver.postgres"})}
}

func (p *Postgres) Connect(ctx context.Context, dsn string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("dbdriver: connect: %w", err)
	}
	p.conn = conn
	p.log.Info("connected")
	return nil
}

func (p *Postgres) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close(context.Background())
	p.conn = nil
	return err
}

func (p *Postgres) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *Postgres) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return 0, ErrNotConnected
	}
	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("dbdriver: query: %w", err)
	}
	return rows, nil
}

func (p *Postgres) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return errRow{ErrNotConnected}
	}
	return conn.QueryRow(ctx, sql, args...)
}

func (p *Postgres) LastInsertID(ctx context.Context, table string) (int64, error) {
	var oid int64
	err := p.QueryRow(ctx, fmt.Sprintf(`SELECT currval(pg_get_serial_sequence('%s', '_oid'))`, p.Escape(table))).Scan(&oid)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: lastInsertID(%s): %w", table, err)
	}
	return oid, nil
}

func (p *Postgres) Escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func (p *Postgres) Dialect() Dialect { return DialectPostgres }

// BeginTx starts a transaction on the single underlying connection,
// implementing Transactor.
func (p *Postgres) BeginTx(ctx context.Context) (Tx, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbdriver: begin: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

// postgresTx adapts a pgx.Tx to dbdriver.Tx.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Connect(ctx context.Context, dsn string) error { return nil }
func (t *postgresTx) Disconnect() error                             { return nil }
func (t *postgresTx) IsConnected() bool                             { return true }

func (t *postgresTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: tx exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("dbdriver: tx query: %w", err)
	}
	return rows, nil
}

func (t *postgresTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *postgresTx) LastInsertID(ctx context.Context, table string) (int64, error) {
	var oid int64
	err := t.QueryRow(ctx, fmt.Sprintf(`SELECT currval(pg_get_serial_sequence('%s', '_oid'))`, t.Escape(table))).Scan(&oid)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: tx lastInsertID(%s): %w", table, err)
	}
	return oid, nil
}

func (t *postgresTx) Escape(s string) string  { return strings.ReplaceAll(s, "'", "''") }
func (t *postgresTx) Dialect() Dialect        { return DialectPostgres }
func (t *postgresTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *postgresTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// errRow is a pgx.Row that always reports err on Scan, used so QueryRow
// can return a usable value instead of nil when the driver isn't
// connected.
type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }
