package catalog

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissingFileYieldsEmptyDocument(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/games/apps.json")
	doc, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Apps)
}

func TestStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/games/apps.json")

	doc := &Document{Apps: []Entry{
		{Name: "Half-Life 2", Cmd: "steam://rungameid/220", ExitTimeout: 30},
		{Name: "Portal", Detached: []string{"steam://open/bigpicture"}, PrepCmds: []PrepCmd{{Do: "do", Undo: "undo"}}},
	}}
	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Apps, 2)
	assert.Equal(t, doc.Apps, loaded.Apps)
}

func TestStoreSaveOverwritesExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/games/apps.json")
	require.NoError(t, store.Save(&Document{Apps: []Entry{{Name: "First"}}}))
	require.NoError(t, store.Save(&Document{Apps: []Entry{{Name: "Second"}}}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Apps, 1)
	assert.Equal(t, "Second", loaded.Apps[0].Name)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/games/apps.json")
	require.NoError(t, store.Save(&Document{Apps: []Entry{{Name: "Portal"}}}))

	infos, err := afero.ReadDir(fs, "/games")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "apps.json", infos[0].Name())
}

func TestStoreLoadRejectsInvalidDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/apps.json", []byte(`{"apps":[{"cmd":"no name"}]}`), 0o644))

	store := NewStore(fs, "/apps.json")
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestStoreLoadRejectsMalformedJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/apps.json", []byte(`{"apps": [`), 0o644))

	store := NewStore(fs, "/apps.json")
	_, err := store.Load()
	require.Error(t, err)
}

func TestValidateDocument(t *testing.T) {
	assert.NoError(t, ValidateDocument([]byte(`{"apps":[{"name":"Portal","cmd":"run","elevated":true}]}`)))
	assert.NoError(t, ValidateDocument([]byte(`{"apps":[],"env":{"PATH":"/usr/bin"}}`)))

	cases := []struct {
		label string
		doc   string
	}{
		{"missing apps", `{}`},
		{"apps not an array", `{"apps":{}}`},
		{"entry without name", `{"apps":[{"cmd":"run"}]}`},
		{"empty name", `{"apps":[{"name":""}]}`},
		{"wrong field type", `{"apps":[{"name":"Portal","elevated":"yes"}]}`},
	}
	for _, tc := range cases {
		err := ValidateDocument([]byte(tc.doc))
		require.Error(t, err, tc.label)
		assert.True(t, errors.Is(err, ErrInvalidDocument), tc.label)
	}
}
