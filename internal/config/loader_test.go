package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/shipledger/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	return dir
}

func Test_Load_AppliesDefaultsWhenNothingIsConfigured(t *testing.T) {
	// setup
	t.Setenv("SHIPLEDGER_AUTH_SECRET", "test-secret")

	// act
	cfg, err := config.Load(t.TempDir())

	// assert
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "shipment_history", cfg.Ledger.TableName)
}

func Test_Load_ReadsDriverFromConfigFile(t *testing.T) {
	// setup
	dir := writeConfigFile(t, "auth:\n  secret: test-secret\ndatabase:\n  driver: sqlx\n")

	// act
	cfg, err := config.Load(dir)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "sqlx", cfg.Database.Driver)
}

func Test_Load_EnvironmentOverridesDriver(t *testing.T) {
	// setup
	t.Setenv("SHIPLEDGER_AUTH_SECRET", "test-secret")
	t.Setenv("SHIPLEDGER_DATABASE_DRIVER", "pq")

	// act
	cfg, err := config.Load(t.TempDir())

	// assert
	require.NoError(t, err)
	assert.Equal(t, "pq", cfg.Database.Driver)
}

func Test_Load_RejectsUnknownDriver(t *testing.T) {
	// setup
	t.Setenv("SHIPLEDGER_AUTH_SECRET", "test-secret")
	t.Setenv("SHIPLEDGER_DATABASE_DRIVER", "mysql")

	// act
	_, err := config.Load(t.TempDir())

	// assert
	assert.ErrorContains(t, err, "database.driver")
}

func Test_Load_RequiresAuthSecret(t *testing.T) {
	// setup
	t.Setenv("SHIPLEDGER_AUTH_SECRET", "")

	// act
	_, err := config.Load(t.TempDir())

	// assert
	assert.ErrorContains(t, err, "auth.secret")
}
