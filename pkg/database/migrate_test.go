package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestMigration_Embedded(t *testing.T) {
	latest, err := latestMigration(migrationsFS)
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
}

func TestLatestMigration_MissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000001_init.up.sql":   {Data: []byte("SELECT 1;")},
		"migrations/000001_init.down.sql": {Data: []byte("SELECT 1;")},
		"migrations/000002_more.up.sql":   {Data: []byte("SELECT 1;")},
	}
	_, err := latestMigration(fsys)
	assert.ErrorContains(t, err, "migration 2 has no down file")
}

func TestMigrationState_Pending(t *testing.T) {
	assert.True(t, MigrationState{Current: 1, Latest: 2}.Pending())
	assert.False(t, MigrationState{Current: 2, Latest: 2}.Pending())
}
