package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMigrationFiles_SortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":   {Data: []byte("SELECT 1;")},
		"002_second.sql":  {Data: []byte("SELECT 2;")},
		"001_initial.sql": {Data: []byte("SELECT 3;")},
		"README.md":       {Data: []byte("notes")},
		"noversion.sql":   {Data: []byte("SELECT 4;")},
	}
	got, err := findMigrationFiles(fsys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"001", "002", "010"}, []string{got[0].Version, got[1].Version, got[2].Version})
	assert.Equal(t, "001_initial.sql", got[0].Path)
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := findMigrationFiles(files)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001", got[0].Version)
}

func TestChecksum(t *testing.T) {
	a := checksum([]byte("CREATE TABLE a ();"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, checksum([]byte("CREATE TABLE a ();")))
	assert.NotEqual(t, a, checksum([]byte("CREATE TABLE b ();")))
}
