package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Connect(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestConnect_InvalidPath(t *testing.T) {
	_, err := Connect("/nonexistent/dir/ledger.db")
	assert.Error(t, err)
}
