package engine

import (
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/orangeshare/pkg/changeset"
	"github.com/sidkik/orangeshare/pkg/listener"
	"github.com/sidkik/orangeshare/pkg/listener/mocks"
)

const (
	testPath       = "/folders/photos"
	testIdentifier = "5d2c7f0e9a"
)

type fakeWatcher struct {
	lock    sync.Mutex
	enabled bool
	closed  bool
}

func (w *fakeWatcher) Enable() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.enabled = true
}

func (w *fakeWatcher) Disable() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.enabled = false
}

func (w *fakeWatcher) Enabled() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.enabled
}

func (w *fakeWatcher) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.closed = true
	return nil
}

// fakeBackend is a backend whose syncs succeed unless told otherwise.
type fakeBackend struct {
	lock            sync.Mutex
	revision        string
	localChanges    bool
	remoteChanges   bool
	unsynced        bool
	syncUpResults   []bool
	syncDownResults []bool
	syncUps         int
	syncDowns       int
	changeSets      []changeset.ChangeSet

	// remoteAdded is the list of files added by the next download.
	remoteAdded []string

	// onSync is called at the end of every sync.
	onSync func()
}

func (b *fakeBackend) ComputeIdentifier() (string, error) {
	return testIdentifier, nil
}

func (b *fakeBackend) CurrentRevision() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.revision
}

func (b *fakeBackend) HasLocalChanges() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.localChanges
}

func (b *fakeBackend) HasRemoteChanges() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.remoteChanges
}

func (b *fakeBackend) HasUnsyncedChanges() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.unsynced
}

func (b *fakeBackend) SetHasUnsyncedChanges(unsynced bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.unsynced = unsynced
}

func (b *fakeBackend) SyncUp() bool {
	b.lock.Lock()
	b.syncUps++
	ok := pop(&b.syncUpResults)
	if ok {
		added := []string{"photo.jpg"}
		if len(b.changeSets) == 0 {
			added = []string{MarkerFile, WelcomeFile}
		}
		b.commitLocked(added)
		b.localChanges = false
	}
	onSync := b.onSync
	b.lock.Unlock()

	if onSync != nil {
		onSync()
	}
	return ok
}

func (b *fakeBackend) SyncDown() bool {
	b.lock.Lock()
	b.syncDowns++
	ok := pop(&b.syncDownResults)
	if ok && b.remoteChanges {
		added := b.remoteAdded
		if added == nil {
			added = []string{"remote.txt"}
		}
		b.commitLocked(added)
		b.remoteChanges = false
	}
	onSync := b.onSync
	b.lock.Unlock()

	if onSync != nil {
		onSync()
	}
	return ok
}

func (b *fakeBackend) ChangeSets(count int) ([]changeset.ChangeSet, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if len(b.changeSets) < count {
		count = len(b.changeSets)
	}
	return append([]changeset.ChangeSet{}, b.changeSets[:count]...), nil
}

func (b *fakeBackend) ExcludePaths() []string {
	return []string{".git"}
}

func (b *fakeBackend) counts() (syncUps, syncDowns int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.syncUps, b.syncDowns
}

func (b *fakeBackend) commitLocked(added []string) {
	b.revision = fmt.Sprintf("rev%d", len(b.changeSets)+1)
	b.changeSets = append([]changeset.ChangeSet{{
		Revision: b.revision,
		Added:    added,
	}}, b.changeSets...)
}

func pop(results *[]bool) bool {
	if len(*results) == 0 {
		return true
	}
	result := (*results)[0]
	*results = (*results)[1:]
	return result
}

type testEngine struct {
	*Engine
	fb    *fakeBackend
	fw    *fakeWatcher
	clock clockwork.FakeClock
}

func mockFs(t *testing.T) {
	orig := fs
	fs = afero.NewMemMapFs()
	t.Cleanup(func() { fs = orig })
	require.NoError(t, fs.MkdirAll(testPath, 0755))
}

// newTestEngine creates an engine whose listener never connects.
// Announcements made by the engine are queued on the listener.
func newTestEngine(t *testing.T, fb *fakeBackend) testEngine {
	tr := &mocks.Transport{}
	tr.On("IsConnected").Return(false)
	tr.On("IsConnecting").Return(false)
	tr.On("Connect").Return()
	tr.On("Close").Return(nil)

	registry := listener.NewRegistry(nil, clockwork.NewFakeClock())
	registry.RegisterTransport("tcp", func(*url.URL, listener.Handler) listener.Transport {
		return tr
	})
	t.Cleanup(registry.Close)

	watcher := &fakeWatcher{enabled: true}
	clock := clockwork.NewFakeClock()
	remote, err := url.Parse("ssh://git@example.com/photos")
	require.NoError(t, err)

	e, err := New(Options{
		LocalPath: testPath,
		RemoteURL: remote,
		Backend:   fb,
		Listeners: registry,
		NewWatcher: func(string, func(fsnotify.Event)) (Watcher, error) {
			return watcher, nil
		},
		Clock: clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	return testEngine{Engine: e, fb: fb, fw: watcher, clock: clock}
}

// assertRunning checks that both the watcher and the timers are on.
func (e testEngine) assertRunning(t *testing.T) {
	t.Helper()
	e.watchLock.Lock()
	localEnabled := e.localEnabled
	e.watchLock.Unlock()

	require.True(t, e.fw.Enabled(), "watcher should be enabled")
	require.True(t, localEnabled, "local timer should be enabled")
	require.True(t, e.remoteEnabled.Load(), "remote timer should be enabled")
}
