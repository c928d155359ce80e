package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_MigratesSchemaAndHealthChecks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "app.db")
	require.NoError(t, Initialize(dbPath))
	defer Close()

	assert.NoError(t, HealthCheck())
	assert.True(t, DB.Migrator().HasTable("meetings"))
	assert.True(t, DB.Migrator().HasTable("users"))
}

func TestHealthCheck_FailsWithoutInitialize(t *testing.T) {
	DB = nil
	assert.Error(t, HealthCheck())
}

func TestClose_IsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "app.db")
	require.NoError(t, Initialize(dbPath))
	assert.NoError(t, Close())
	assert.NoError(t, Close())
	assert.Nil(t, DB)
}
