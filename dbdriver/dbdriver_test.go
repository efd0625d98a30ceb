package dbdriver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"scnotify.dev/dbdriver"
)

func TestPostgresUnconnectedOperationsFail(t *testing.T) {
	p := dbdriver.NewPostgres()
	assert.False(t, p.IsConnected())
	assert.Equal(t, dbdriver.DialectPostgres, p.Dialect())

	_, err := p.Exec(context.Background(), "select 1")
	assert.ErrorIs(t, err, dbdriver.ErrNotConnected)

	_, err = p.Query(context.Background(), "select 1")
	assert.ErrorIs(t, err, dbdriver.ErrNotConnected)

	var out int
	err = p.QueryRow(context.Background(), "select 1").Scan(&out)
	assert.ErrorIs(t, err, dbdriver.ErrNotConnected)
}

func TestPostgresPoolUnconnectedOperationsFail(t *testing.T) {
	p := dbdriver.NewPostgresPool()
	assert.False(t, p.IsConnected())

	_, err := p.Exec(context.Background(), "select 1")
	assert.ErrorIs(t, err, dbdriver.ErrNotConnected)
}

func TestEscapeDoublesSingleQuotes(t *testing.T) {
	p := dbdriver.NewPostgres()
	assert.Equal(t, "O''Brien", p.Escape("O'Brien"))
}

func TestDialectString(t *testing.T) {
	assert.Equal(t, "postgres", dbdriver.DialectPostgres.String())
	assert.Equal(t, "mysql", dbdriver.DialectMySQL.String())
	assert.Equal(t, "unknown", dbdriver.DialectUnknown.String())
}
