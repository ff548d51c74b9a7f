//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/database"
	"github.com/cloo-solutions/docsage/internal/testutil"
)

const migrationsDir = "../../migrations"

func TestNewPool(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, int32(4), pool.Config().MaxConns)

	var one int
	require.NoError(t, pool.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestNewPool_InvalidURL(t *testing.T) {
	_, err := database.NewPool(context.Background(), database.Config{URL: "://bad"})
	assert.Error(t, err)
}

func TestMigrateUp(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)

	version, applied, err := database.MigrateUp(pc.ConnectionString(), migrationsDir)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, uint(1), version)

	version, applied, err = database.MigrateUp(pc.ConnectionString(), migrationsDir)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, uint(1), version)

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString()})
	require.NoError(t, err)
	defer pool.Close()

	var extension string
	require.NoError(t, pool.QueryRow(ctx, "SELECT extname FROM pg_extension WHERE extname = 'vector'").Scan(&extension))
	assert.Equal(t, "vector", extension)
}
