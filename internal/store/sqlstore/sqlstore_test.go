package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/todobridge/internal/record"
)

func ptr[T any](v T) *T { return &v }

func newSQLiteStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	cfg.FilePath = filepath.Join(t.TempDir(), "records.db")
	s, err := OpenSQLite(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfig_withDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultSQLiteFile, cfg.FilePath)
	assert.Equal(t, DefaultMaxOpenConns, cfg.MaxOpenConns)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MaxIdleConns)

	custom := Config{FilePath: "x.db", MaxOpenConns: 3, MaxIdleConns: 2}.withDefaults()
	assert.Equal(t, "x.db", custom.FilePath)
	assert.Equal(t, 3, custom.MaxOpenConns)
	assert.Equal(t, 2, custom.MaxIdleConns)
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	assert.Equal(t, q, sqliteDialect.rebind(q))
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = $3", postgresDialect.rebind(q))
}

func TestOpenPostgresRequiresConnectionString(t *testing.T) {
	_, err := OpenPostgres(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestSQLiteCRUD(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, Config{})

	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	created, err := s.Create(ctx, record.Draft{Title: "Buy milk", Description: ptr("2L")})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Nil(t, created.CompletedAt)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, "2L", *got.Description)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)

	updated, err := s.Update(ctx, created.ID, record.Changes{IsCompleted: ptr(true), Description: ptr("")})
	require.NoError(t, err)
	assert.True(t, updated.IsCompleted)
	assert.NotNil(t, updated.CompletedAt)
	assert.Nil(t, updated.Description)

	reloaded, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsCompleted)
	assert.NotNil(t, reloaded.CompletedAt)
	assert.Nil(t, reloaded.Description)

	deleted, err := s.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)

	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
	_, err = s.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
	_, err = s.Update(ctx, created.ID, record.Changes{Title: ptr("x")})
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestSQLiteValidation(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, Config{})

	_, err := s.Create(ctx, record.Draft{Title: ""})
	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)

	r, err := s.Create(ctx, record.Draft{Title: "ok"})
	require.NoError(t, err)
	_, err = s.Update(ctx, r.ID, record.Changes{Title: ptr(string(make([]byte, record.MaxTitleLength+1)))})
	assert.Error(t, err)
}

func TestSQLiteSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seeded.db")

	s, err := OpenSQLite(ctx, Config{FilePath: path, Seed: true}, nil)
	require.NoError(t, err)
	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, len(record.SeedDrafts()))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, Config{FilePath: path, Seed: true}, nil)
	require.NoError(t, err)
	defer reopened.Close()
	items, err = reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, len(record.SeedDrafts()))
}

func TestPostgresCRUD(t *testing.T) {
	dsn := os.Getenv("TODOBRIDGE_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TODOBRIDGE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, Config{ConnectionString: dsn}, nil)
	require.NoError(t, err)
	defer s.Close()

	created, err := s.Create(ctx, record.Draft{Title: "pg", IsCompleted: true})
	require.NoError(t, err)
	assert.NotNil(t, created.CompletedAt)

	_, err = s.Delete(ctx, created.ID)
	require.NoError(t, err)
}
