package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestMigrate_RecordsEachVersionOnce(t *testing.T) {
	logger := arbor.NewLogger()
	path := filepath.Join(t.TempDir(), "catalog.db")

	db, err := NewSQLiteDB(logger, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not re-run applied migrations
	db, err = NewSQLiteDB(logger, path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	var name string
	require.NoError(t, db.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'raw_records'").Scan(&name))
	assert.Equal(t, "raw_records", name)
}
