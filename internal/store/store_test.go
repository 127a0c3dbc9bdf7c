package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_, err := kv.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrAbsent)

	val := []byte(`{"version":1}`)
	require.NoError(t, kv.Save(ctx, "k", val))
	val[0] = 'X'

	got, err := kv.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))

	require.NoError(t, kv.Delete(ctx, "k", "missing"))
	_, err = kv.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestDB_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectClose()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	d := &DB{Client: db}
	require.NoError(t, d.Migrate(context.Background()))
	assert.Equal(t, ".", gotDir)

	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("locked") }
	assert.ErrorContains(t, d.Migrate(context.Background()), "migrate: locked")
}

func TestDB_NilSafe(t *testing.T) {
	var d *DB
	assert.NoError(t, d.Close())
	assert.False(t, d.Healthy(context.Background()))
}
