package git

import (
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogit "gopkg.in/src-d/go-git.v4"

	"github.com/sidkik/orangeshare/pkg/backend"
	"github.com/sidkik/orangeshare/pkg/changeset"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "orangeshare-git")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// newRemote creates an empty bare repository, and returns its URL and path.
func newRemote(t *testing.T) (string, string) {
	path := filepath.Join(tempDir(t), "photos.git")
	_, err := gogit.PlainInit(path, true)
	require.NoError(t, err)
	return "file://" + path, path
}

func newTestBackend(t *testing.T) (*Backend, string) {
	remote, _ := newRemote(t)
	return newBackendFor(t, remote)
}

func newBackendFor(t *testing.T, remote string) (*Backend, string) {
	dir := tempDir(t)
	remoteURL, err := url.Parse(remote)
	require.NoError(t, err)

	b, err := backend.New(Name, backend.Options{
		LocalPath: dir,
		RemoteURL: remoteURL,
		User:      changeset.User{Name: "Ada", Email: "ada@example.com"},
		Log:       log.WithField("test", t.Name()),
	})
	require.NoError(t, err)
	return b.(*Backend), dir
}

func writeFile(t *testing.T, dir, name, contents string) {
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
}

func commit(t *testing.T, b *Backend) {
	committed, err := b.commit()
	require.NoError(t, err)
	require.True(t, committed)
}

func TestNewRequiresRemote(t *testing.T) {
	_, err := New(backend.Options{LocalPath: "/tmp/unused"})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, backend.Names(), Name)
}

func TestEmptyRepository(t *testing.T) {
	b, _ := newTestBackend(t)

	assert.Equal(t, "", b.CurrentRevision())
	assert.False(t, b.HasLocalChanges())

	id, err := b.ComputeIdentifier()
	require.NoError(t, err)
	assert.Equal(t, sha1Hex(b.remoteURL), id)

	changeSets, err := b.ChangeSets(backend.DefaultHistoryLength)
	require.NoError(t, err)
	assert.Empty(t, changeSets)

	committed, err := b.commit()
	require.NoError(t, err)
	assert.False(t, committed)
}

func TestHistory(t *testing.T) {
	b, dir := newTestBackend(t)

	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, "photos/b.jpg", "b")
	assert.True(t, b.HasLocalChanges())
	commit(t, b)
	assert.False(t, b.HasLocalChanges())

	root := b.CurrentRevision()
	assert.NotEmpty(t, root)

	id, err := b.ComputeIdentifier()
	require.NoError(t, err)
	assert.Equal(t, sha1Hex(root), id)

	writeFile(t, dir, "a.txt", "edited")
	require.NoError(t, os.Rename(filepath.Join(dir, "photos/b.jpg"), filepath.Join(dir, "photos/c.jpg")))
	writeFile(t, dir, "d.txt", "d")
	commit(t, b)

	require.NoError(t, os.Remove(filepath.Join(dir, "d.txt")))
	commit(t, b)

	// The identifier doesn't change as commits are added.
	id, err = b.ComputeIdentifier()
	require.NoError(t, err)
	assert.Equal(t, sha1Hex(root), id)

	changeSets, err := b.ChangeSets(backend.DefaultHistoryLength)
	require.NoError(t, err)
	require.Len(t, changeSets, 3)

	assert.Equal(t, b.CurrentRevision(), changeSets[0].Revision)
	assert.Equal(t, []string{"d.txt"}, changeSets[0].Deleted)

	assert.Equal(t, []string{"a.txt"}, changeSets[1].Edited)
	assert.Equal(t, []string{"d.txt"}, changeSets[1].Added)
	assert.Equal(t, []string{"photos/b.jpg"}, changeSets[1].MovedFrom)
	assert.Equal(t, []string{"photos/c.jpg"}, changeSets[1].MovedTo)

	assert.Equal(t, root, changeSets[2].Revision)
	assert.Equal(t, []string{"a.txt", "photos/b.jpg"}, changeSets[2].Added)
	assert.Equal(t, changeset.User{Name: "Ada", Email: "ada@example.com"}, changeSets[2].User)
	assert.Equal(t, "photos.git", filepath.Base(changeSets[2].RemoteURL.Path))

	changeSets, err = b.ChangeSets(1)
	require.NoError(t, err)
	assert.Len(t, changeSets, 1)
}

func TestReopen(t *testing.T) {
	b, dir := newTestBackend(t)
	writeFile(t, dir, "a.txt", "a")
	commit(t, b)

	remote, err := url.Parse("file:///ignored/because/repo/exists.git")
	require.NoError(t, err)
	reopened, err := New(backend.Options{LocalPath: dir, RemoteURL: remote, Log: b.log})
	require.NoError(t, err)
	assert.Equal(t, b.CurrentRevision(), reopened.CurrentRevision())
}

func TestUnsyncedChanges(t *testing.T) {
	b, _ := newTestBackend(t)
	assert.False(t, b.HasUnsyncedChanges())

	b.SetHasUnsyncedChanges(true)
	assert.True(t, b.HasUnsyncedChanges())

	// The flag survives reopening the repository.
	reopened, err := New(backend.Options{
		LocalPath: b.localPath,
		RemoteURL: b.folder.RemoteAddress,
		Log:       b.log,
	})
	require.NoError(t, err)
	assert.True(t, reopened.HasUnsyncedChanges())

	b.SetHasUnsyncedChanges(false)
	assert.False(t, b.HasUnsyncedChanges())
	b.SetHasUnsyncedChanges(false)
	assert.False(t, b.HasUnsyncedChanges())
}

func TestSyncUpUnreachableRemote(t *testing.T) {
	remote, remotePath := newRemote(t)
	b, dir := newBackendFor(t, remote)
	require.NoError(t, os.RemoveAll(remotePath))
	writeFile(t, dir, "a.txt", "a")

	assert.False(t, b.SyncUp())

	// The changes are committed even though they couldn't be pushed.
	assert.False(t, b.HasLocalChanges())
	assert.NotEmpty(t, b.CurrentRevision())
}

func TestNewUnreachableRemote(t *testing.T) {
	dir := tempDir(t)
	remote, err := url.Parse("file:///does/not/exist/photos.git")
	require.NoError(t, err)

	_, err = New(backend.Options{LocalPath: dir, RemoteURL: remote})
	assert.Error(t, err)

	// Nothing is left behind, so the next attempt clones again.
	_, err = os.Stat(filepath.Join(dir, ".git"))
	assert.True(t, os.IsNotExist(err))
}

func TestJoinExistingRemote(t *testing.T) {
	remote, _ := newRemote(t)

	first, firstDir := newBackendFor(t, remote)
	writeFile(t, firstDir, ".sparkleshare", "8a7f3bd1c0e2")
	writeFile(t, firstDir, "hello.txt", "hello")
	require.True(t, first.SyncUp())

	// A second machine starts out with the remote's history.
	second, secondDir := newBackendFor(t, remote)
	assert.Equal(t, first.CurrentRevision(), second.CurrentRevision())
	assert.False(t, second.HasLocalChanges())
	assert.False(t, second.HasRemoteChanges())
	assertFile(t, secondDir, "hello.txt", "hello")
	assertFile(t, secondDir, ".sparkleshare", "8a7f3bd1c0e2")

	firstID, err := first.ComputeIdentifier()
	require.NoError(t, err)
	secondID, err := second.ComputeIdentifier()
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	// Uploads from one machine are downloaded by the other.
	writeFile(t, firstDir, "photos/a.jpg", "a")
	require.True(t, first.SyncUp())
	assert.True(t, second.HasRemoteChanges())
	require.True(t, second.SyncDown())
	assert.Equal(t, first.CurrentRevision(), second.CurrentRevision())
	assertFile(t, secondDir, "photos/a.jpg", "a")

	changeSets, err := second.ChangeSets(1)
	require.NoError(t, err)
	require.Len(t, changeSets, 1)
	assert.Equal(t, []string{"photos/a.jpg"}, changeSets[0].Added)

	writeFile(t, secondDir, "hello.txt", "edited")
	require.True(t, second.SyncUp())
	assert.True(t, first.HasRemoteChanges())
	require.True(t, first.SyncDown())
	assert.Equal(t, second.CurrentRevision(), first.CurrentRevision())
	assertFile(t, firstDir, "hello.txt", "edited")

	changeSets, err = first.ChangeSets(1)
	require.NoError(t, err)
	require.Len(t, changeSets, 1)
	assert.Equal(t, []string{"hello.txt"}, changeSets[0].Edited)
}

func TestSyncDownDiverged(t *testing.T) {
	remote, _ := newRemote(t)

	first, firstDir := newBackendFor(t, remote)
	writeFile(t, firstDir, "a.txt", "a")
	require.True(t, first.SyncUp())

	second, secondDir := newBackendFor(t, remote)
	writeFile(t, firstDir, "b.txt", "b")
	require.True(t, first.SyncUp())

	// The second machine commits on top of the old revision, so it can't
	// push or fast forward.
	writeFile(t, secondDir, "c.txt", "c")
	assert.False(t, second.SyncUp())
	assert.False(t, second.SyncDown())
}

func assertFile(t *testing.T, dir, name, exp string) {
	contents, err := ioutil.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, exp, string(contents))
}
