// Package dbtest provides an in-memory SQLite database for package tests.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/smartlibrary/library/internal/db"
)

// Open returns a migrated in-memory database that is closed when t ends.
func Open(t testing.TB) *db.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        db.NowUTC,
	})
	require.NoError(t, err)

	// Every new connection to :memory: is a separate database.
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	t.Cleanup(func() { _ = database.Close() })
	return database
}
