package dbdriver

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scnotify.dev/scmlog"
)

// PostgresPool is a pool-backed driver grounded on db/postgres_pgx.go's
// pgxpool usage. Unlike Postgres, it IS safe for concurrent use: safety is
// delegated entirely to *pgxpool.Pool (spec §5).
type PostgresPool struct {
	pool      atomic.Pointer[pgxpool.Pool]
	connected atomic.Bool
	log       *scmlog.ContextLogger
}

// NewPostgresPool constructs an unconnected pooled driver.
func NewPostgresPool() *PostgresPool {
	return &PostgresPool{log: scmlog.NewContextLogger(nil, map[string]any{"component": "dbdriver.postgres_pool"})}
}

func (p *PostgresPool) Connect(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("dbdriver: connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("dbdriver: ping pool: %w", err)
	}
	p.pool.Store(pool)
	p.connected.Store(true)
	p.log.Info("pool connected")
	return nil
}

func (p *PostgresPool) Disconnect() error {
	if pool := p.pool.Swap(nil); pool != nil {
		pool.Close()
	}
	p.connected.Store(false)
	return nil
}

func (p *PostgresPool) IsConnected() bool { return p.connected.Load() && p.pool.Load() != nil }

func (p *PostgresPool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	pool := p.pool.Load()
	if pool == nil {
		return 0, ErrNotConnected
	}
	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool := p.pool.Load()
	if pool == nil {
		return nil, ErrNotConnected
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("dbdriver: query: %w", err)
	}
	return rows, nil
}

func (p *PostgresPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool := p.pool.Load()
	if pool == nil {
		return errRow{ErrNotConnected}
	}
	return pool.QueryRow(ctx, sql, args...)
}

func (p *PostgresPool) LastInsertID(ctx context.Context, table string) (int64, error) {
	var oid int64
	err := p.QueryRow(ctx, fmt.Sprintf(`SELECT currval(pg_get_serial_sequence('%s', '_oid'))`, p.Escape(table))).Scan(&oid)
	if err != nil {
		return 0, fmt.Errorf("dbdriver: lastInsertID(%s): %w", table, err)
	}
	return oid, nil
}

func (p *PostgresPool) Escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func (p *PostgresPool) Dialect() Dialect { return DialectPostgres }

// BeginTx starts a transaction on a connection borrowed from the pool,
// implementing Transactor.
func (p *PostgresPool) BeginTx(ctx context.Context) (Tx, error) {
	pool := p.pool.Load()
	if pool == nil {
		return nil, ErrNotConnected
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbdriver: begin: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}
