package baseline

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStoreFromDSNFileSchemes(t *testing.T) {
	fs := afero.NewMemMapFs()

	store, err := BuildStoreFromDSN(fs, "/var/lib/sunsync/cache.json")
	require.NoError(t, err)
	fileStore, ok := store.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, "/var/lib/sunsync/cache.json", fileStore.Path())

	store, err = BuildStoreFromDSN(fs, "file:///var/lib/sunsync/cache.json")
	require.NoError(t, err)
	fileStore, ok = store.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, "/var/lib/sunsync/cache.json", fileStore.Path())
}

func TestBuildStoreFromDSNDefault(t *testing.T) {
	store, err := BuildStoreFromDSN(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	fileStore, ok := store.(*FileStore)
	require.True(t, ok)
	assert.Contains(t, fileStore.Path(), ".sunsync")
}

func TestBuildStoreFromDSNMemory(t *testing.T) {
	for _, dsn := range []string{"memory://", "mem://", "inmem://"} {
		store, err := BuildStoreFromDSN(afero.NewMemMapFs(), dsn)
		require.NoError(t, err, dsn)
		_, ok := store.(*MemoryStore)
		assert.True(t, ok, dsn)
	}
}

func TestBuildStoreFromDSNPostgres(t *testing.T) {
	store, err := BuildStoreFromDSN(afero.NewMemMapFs(), "postgres://user:pw@localhost:5432/sunsync")
	require.NoError(t, err)
	_, ok := store.(*PostgresStore)
	assert.True(t, ok)
	require.NoError(t, Close(store))
}

func TestBuildStoreFromDSNUnknownScheme(t *testing.T) {
	_, err := BuildStoreFromDSN(afero.NewMemMapFs(), "redis://localhost")
	assert.Error(t, err)
}
