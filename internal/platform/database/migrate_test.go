package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afenda/migrations"
)

func TestUpFilesOrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"000001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("notes")},
	}

	files, err := upFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, files)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := upFiles(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, up := range files {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := migrations.FS.Open(down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestNewDisabledWithoutURL(t *testing.T) {
	pool, err := New(t.Context(), Config{})
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Error(t, pool.Health(t.Context()))
	assert.NoError(t, pool.Close())
}
