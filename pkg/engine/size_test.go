package engine

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderSize(t *testing.T) {
	mockFs(t)

	files := map[string]string{
		"a.txt":               "hello",
		"dir/b.txt":           "world!",
		"dir/nested/c.txt":    "abc",
		".git/objects/blob":   "ignored because .git is excluded",
		"dir/.git/HEAD":       "also ignored",
		"not-git/readme.md":   "12345678",
		"dir/nested/.gitkeep": "",
	}
	for path, contents := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(testPath, path), []byte(contents), 0644))
	}

	assert.Equal(t, int64(5+6+3+8), folderSize(testPath, []string{".git"}))
	assert.Equal(t, int64(6+3), folderSize(filepath.Join(testPath, "dir"), []string{".git"}))
	assert.Equal(t, int64(0), folderSize(filepath.Join(testPath, ".git"), []string{".git"}))
	assert.Equal(t, int64(0), folderSize("/does/not/exist", nil))
}
