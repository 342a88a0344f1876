// Package testutil provides shared helpers for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/aggregator/internal/database"
)

// NewAggregatorDB creates a temporary aggregator database with the full
// schema applied. The file lives in t.TempDir() and is removed with it.
func NewAggregatorDB(t *testing.T) *sql.DB {
	t.Helper()
	return newDB(t, "aggregator", database.ProfileStandard)
}

// NewCacheDB creates a temporary cache database with the cache schema.
func NewCacheDB(t *testing.T) *sql.DB {
	t.Helper()
	return newDB(t, "cache", database.ProfileCache)
}

func newDB(t *testing.T, name string, profile database.DatabaseProfile) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}
