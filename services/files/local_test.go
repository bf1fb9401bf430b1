package filesvc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core"
)

func TestLocalStore(t *testing.T) {
	conf := core.NewTestConfig()
	conf.DataFolder = t.TempDir()
	store := NewLocalStore(conf)

	fp := store.LocalPath(7, "a.png")
	assert.Equal(t, filepath.Join(conf.DataFolder, "answer_books", "7", "a.png"), fp)

	exists, err := store.Exists(7, "a.png")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(7, "a.png", []byte("png")))
	exists, err = store.Exists(7, "a.png")
	require.NoError(t, err)
	assert.True(t, exists)
	content, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "png", string(content))

	require.NoError(t, store.Remove(7, "a.png", "missing.png"))
	exists, err = store.Exists(7, "a.png")
	require.NoError(t, err)
	assert.False(t, exists)
}
