// Package dbtest opens a migrated in-memory sqlite database for tests.
package dbtest

import (
	"testing"

	"Gin_postgres_redis_loan_approval/db"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a fresh repo per test. One connection only: every
// :memory: connection would otherwise see its own empty database.
func New(t *testing.T) *db.Repo {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return db.NewRepo(gdb)
}
