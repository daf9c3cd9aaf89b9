package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labcore/internal/infra/persistence/memory"
	"labcore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("LABCORE_STORAGE_DRIVER", string(StorageMemory))
	store, err := OpenPersistentStore()
	require.NoError(t, err)
	_, ok := store.(*memory.Store)
	assert.True(t, ok)
}

func TestOpenPersistentStoreSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labcore.db")
	t.Setenv("LABCORE_STORAGE_DRIVER", string(StorageSQLite))
	t.Setenv("LABCORE_SQLITE_PATH", path)
	store, err := OpenPersistentStore()
	require.NoError(t, err)
	s, ok := store.(*sqlite.Store)
	require.True(t, ok)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Close())
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("LABCORE_STORAGE_DRIVER", "tape")
	_, err := OpenPersistentStore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tape")
}
