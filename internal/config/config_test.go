package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "library", cfg.ServiceName)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, int64(100), cfg.FineRateCents)
	assert.Equal(t, 5, cfg.DefaultMaxBooks)
	assert.Equal(t, 14*24*time.Hour, cfg.LoanPeriod())
	assert.Equal(t, cfg.PGDSN, cfg.DSN())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/lib.db")
	t.Setenv("FINE_RATE_CENTS", "250")
	t.Setenv("LOAN_PERIOD_DAYS", "21")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/tmp/lib.db", cfg.DSN())
	assert.Equal(t, int64(250), cfg.FineRateCents)
	assert.Equal(t, 21, cfg.LoanPeriodDays)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT: \"9000\"\nDEFAULT_MAX_BOOKS: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.DefaultMaxBooks)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("LOAN_PERIOD_DAYS", "0")
	_, err = Load("")
	assert.Error(t, err)
}
