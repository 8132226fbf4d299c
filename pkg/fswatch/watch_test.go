package fswatch

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPathsToWatch(t *testing.T) {
	defer func() { fs = afero.NewOsFs() }()

	fs = afero.NewMemMapFs()
	dirs := []string{"/folder/docs", "/folder/docs/drafts", "/folder/.git", "/folder/photos"}
	files := []string{"/folder/docs/a.txt", "/folder/docs/drafts/b.txt", "/folder/.git/HEAD"}
	for _, dir := range dirs {
		assert.NoError(t, fs.MkdirAll(dir, 0755))
	}
	for _, file := range files {
		assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
	}

	paths, err := getPathsToWatch("/folder")
	assert.NoError(t, err)

	exp := []string{"/folder", "/folder/.git", "/folder/docs", "/folder/docs/drafts", "/folder/photos"}
	sort.Strings(paths)
	assert.Equal(t, exp, paths)

	_, err = getPathsToWatch("/missing")
	assert.Error(t, err)
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	events := make(chan fsnotify.Event, 64)
	w, err := New(root, func(event fsnotify.Event) {
		events <- event
	})
	require.NoError(t, err)
	defer w.Close()
	assert.True(t, w.Enabled())

	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "a.txt"), []byte("a"), 0644))
	waitForEvent(t, events, filepath.Join(root, "a.txt"))

	// New directories are watched recursively.
	sub := filepath.Join(root, "sub")
	require.NoError(t, fs.Mkdir(sub, 0755))
	waitForEvent(t, events, sub)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(sub, "b.txt"), []byte("b"), 0644))
	waitForEvent(t, events, filepath.Join(sub, "b.txt"))

	w.Disable()
	assert.False(t, w.Enabled())
	drain(events, 100*time.Millisecond)

	disabledPath := filepath.Join(root, "c.txt")
	require.NoError(t, afero.WriteFile(fs, disabledPath, []byte("c"), 0644))
	timeout := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case event := <-events:
			assert.NotEqual(t, disabledPath, event.Name, "unexpected event while disabled")
		case <-timeout:
			done = true
		}
	}

	w.Enable()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "d.txt"), []byte("d"), 0644))
	waitForEvent(t, events, filepath.Join(root, "d.txt"))
}

func drain(events chan fsnotify.Event, wait time.Duration) {
	for {
		select {
		case <-events:
		case <-time.After(wait):
			return
		}
	}
}

func waitForEvent(t *testing.T, events chan fsnotify.Event, path string) {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Name == path {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for an event on %s", path)
		}
	}
}
