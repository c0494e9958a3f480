package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURLEscapesCredentials(t *testing.T) {
	cfg := Config{User: "shop", Password: "p@ss/word", Host: "db", Port: "5432", Name: "printbot", SSLMode: "disable"}
	assert.Equal(t, "postgres://shop:p%40ss%2Fword@db:5432/printbot?sslmode=disable", MigrateURL(cfg))
	assert.Equal(t, "user=shop password=p@ss/word host=db port=5432 dbname=printbot sslmode=disable", DSN(cfg))
}

func TestMigrationFileSelection(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000002_sizes.up.sql", "000001_catalog.up.sql", "000001_catalog.down.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	files := listMigrationFiles(dir)
	assert.Equal(t, []string{"000001_catalog.up.sql", "000002_sizes.up.sql"}, files)
	assert.Equal(t, []string{"000002_sizes.up.sql"}, selectApplied(files, 1, 2))
	assert.Empty(t, selectApplied(files, 2, 2))

	got, err := resolveDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}
