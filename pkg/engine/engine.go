// Package engine keeps a single folder in sync with its remote. Local
// changes are uploaded once the folder stops changing, and remote changes
// are downloaded when an announcement arrives or when the remote is polled.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/orangeshare/pkg/backend"
	"github.com/sidkik/orangeshare/pkg/changeset"
	"github.com/sidkik/orangeshare/pkg/errors"
	"github.com/sidkik/orangeshare/pkg/fswatch"
	"github.com/sidkik/orangeshare/pkg/listener"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

const (
	localInterval     = 250 * time.Millisecond
	remoteInterval    = 10 * time.Second
	shortPollInterval = 3 * time.Minute
	longPollInterval  = 10 * time.Minute
	progressInterval  = time.Second

	// DefaultAnnouncementTimeout is how long an announcement waits for an
	// in-flight sync before it's dropped.
	DefaultAnnouncementTimeout = 5 * time.Minute

	// WelcomeFile is created in folders whose remote is empty.
	WelcomeFile = "OrangeShare.txt"
)

const welcomeText = `Congratulations, you've successfully created an OrangeShare folder!

Any files you add or change in this folder will be automatically synced to
%s and everyone connected to it.

Have fun! :)
`

// Watcher reports file system activity in a folder.
type Watcher interface {
	Enable()
	Disable()
	Enabled() bool
	Close() error
}

// WatcherFunc starts watching `path`, and calls `onEvent` for each event.
type WatcherFunc func(path string, onEvent func(fsnotify.Event)) (Watcher, error)

// NewFSWatcher watches a folder with fsnotify.
func NewFSWatcher(path string, onEvent func(fsnotify.Event)) (Watcher, error) {
	watcher, err := fswatch.New(path, onEvent)
	if err != nil {
		return nil, err
	}
	return watcher, nil
}

// Options contains the settings for a new Engine.
type Options struct {
	// Name defaults to the base name of LocalPath.
	Name      string
	LocalPath string
	RemoteURL *url.URL

	Backend   backend.Backend    // Required.
	Listeners *listener.Registry // Required.

	NewWatcher          WatcherFunc
	Clock               clockwork.Clock
	AnnouncementTimeout time.Duration
	Log                 *log.Entry
}

// Engine syncs a single folder.
type Engine struct {
	name       string
	localPath  string
	remoteURL  *url.URL
	identifier string

	backend  backend.Backend
	listener *listener.Listener
	watcher  Watcher

	clock               clockwork.Clock
	announcementTimeout time.Duration
	log                 *log.Entry

	// syncSem is held for the duration of every sync.
	syncSem chan struct{}

	// changeLock guards the settle detection state.
	changeLock sync.Mutex
	hasChanged bool
	sizes      sizeBuffer

	// watchLock makes the watcher and the local timer switch on and off
	// together.
	watchLock    sync.Mutex
	localEnabled bool

	remoteEnabled atomic.Bool

	lock               sync.Mutex
	status             Status
	serverOnline       bool
	isBuffering        bool
	pollInterval       time.Duration
	lastPoll           time.Time
	changeSets         []changeset.ChangeSet
	progressPercentage float64
	progressSpeed      string
	lastProgress       time.Time

	handlerLock             sync.RWMutex
	statusHandlers          []func(Status)
	progressHandlers        []func(percentage float64, speed string)
	changeSetHandlers       []func(changeset.ChangeSet)
	conflictHandlers        []func()
	changesDetectedHandlers []func()

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	timers    sync.WaitGroup
}

// New creates the engine for a folder. If the remote is empty, an initial
// change set is uploaded. The engine starts listening for announcements
// right away, but the timers don't start until Initialize is called.
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.MissingFieldError{Field: "backend"}
	}
	if opts.Listeners == nil {
		return nil, errors.MissingFieldError{Field: "listeners"}
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(opts.LocalPath)
	}
	if opts.NewWatcher == nil {
		opts.NewWatcher = NewFSWatcher
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.AnnouncementTimeout == 0 {
		opts.AnnouncementTimeout = DefaultAnnouncementTimeout
	}
	if opts.Log == nil {
		opts.Log = log.WithField("folder", opts.Name)
	}

	e := &Engine{
		name:                opts.Name,
		localPath:           opts.LocalPath,
		remoteURL:           opts.RemoteURL,
		backend:             opts.Backend,
		clock:               opts.Clock,
		announcementTimeout: opts.AnnouncementTimeout,
		log:                 opts.Log,
		syncSem:             make(chan struct{}, 1),
		localEnabled:        true,
		serverOnline:        true,
		pollInterval:        shortPollInterval,
		lastPoll:            opts.Clock.Now(),
		stop:                make(chan struct{}),
	}
	e.remoteEnabled.Store(true)

	id, err := loadIdentifier(e.localPath, e.backend.ComputeIdentifier)
	if err != nil {
		return nil, errors.WithContext(err, "identifier")
	}
	e.identifier = id

	if reporter, ok := e.backend.(backend.Reporter); ok {
		reporter.SetEvents(e)
	}

	if e.backend.CurrentRevision() == "" {
		if err := e.createInitialChangeSet(); err != nil {
			return nil, errors.WithContext(err, "create initial change set")
		}
	}
	e.refreshChangeSets()

	e.watcher, err = opts.NewWatcher(e.localPath, e.OnFileActivity)
	if err != nil {
		return nil, errors.WithContext(err, "watch folder")
	}

	if err := e.createListener(opts.Listeners); err != nil {
		if closeErr := e.watcher.Close(); closeErr != nil {
			e.log.WithError(closeErr).Warn("Failed to close file watcher")
		}
		return nil, errors.WithContext(err, "create listener")
	}
	return e, nil
}

// createInitialChangeSet gives an empty remote its first revision.
func (e *Engine) createInitialChangeSet() error {
	remote := ""
	if e.remoteURL != nil {
		remote = e.remoteURL.String()
	}

	path := filepath.Join(e.localPath, WelcomeFile)
	if err := afero.WriteFile(fs, path, []byte(fmt.Sprintf(welcomeText, remote)), 0644); err != nil {
		return errors.WithContext(err, "write welcome file")
	}

	e.log.Info("Uploading initial change set")
	if !e.backend.SyncUp() {
		e.log.Warn("Failed to upload initial change set. Will retry later")
		e.backend.SetHasUnsyncedChanges(true)
	}
	return nil
}

func (e *Engine) createListener(registry *listener.Registry) error {
	l, err := registry.CreateListener(e.name, e.identifier)
	if err != nil {
		return err
	}
	e.listener = l

	if l.IsConnected() {
		e.setPollInterval(longPollInterval)
		go func() {
			if e.IsSyncing() || !e.tryAcquire() {
				return
			}
			defer e.release()
			if e.backend.HasRemoteChanges() {
				e.syncDownBase()
			}
		}()
	}

	l.AddConnectedHandler(e.handleConnected)
	l.AddDisconnectedHandler(e.handleDisconnected)
	l.AddReceivedHandler(e.handleAnnouncement)

	if !l.IsConnected() && !l.IsConnecting() {
		l.Connect()
	}
	return nil
}

// handleConnected switches to the long poll interval, since announcements
// now notify us of remote changes. Anything missed while disconnected is
// synced right away.
func (e *Engine) handleConnected() {
	if e.isClosed() {
		return
	}

	e.lock.Lock()
	e.pollInterval = longPollInterval
	e.lastPoll = e.clock.Now()
	e.lock.Unlock()

	e.listener.AlsoListenTo(e.identifier)
	go e.syncMissed()
}

func (e *Engine) syncMissed() {
	if e.IsSyncing() || !e.tryAcquire() {
		return
	}
	defer e.release()

	if e.backend.HasRemoteChanges() {
		e.syncDownBase()
	}
	if e.backend.HasUnsyncedChanges() {
		e.syncUpBase()
	}
}

func (e *Engine) handleDisconnected() {
	if e.isClosed() {
		return
	}
	e.setPollInterval(shortPollInterval)
	e.log.Info("Falling back to polling")
}

// handleAnnouncement downloads the announced revision. It waits for the
// sync that's in progress, if any.
func (e *Engine) handleAnnouncement(announcement listener.Announcement) {
	if e.isClosed() || announcement.FolderIdentifier != e.identifier {
		return
	}

	if announcement.Message == e.backend.CurrentRevision() {
		e.log.Debug("Not syncing, message is for current revision")
		return
	}

	timeout := e.clock.NewTimer(e.announcementTimeout)
	defer timeout.Stop()

	if err := e.acquire(context.Background(), timeout.Chan()); err != nil {
		e.log.WithError(err).Warn("Dropping announcement")
		return
	}
	defer e.release()

	e.log.WithField("revision", announcement.Message).Info("Syncing due to announcement")
	e.syncDownBase()
}

// OnFileActivity starts buffering changes. The folder is uploaded once its
// size settles.
func (e *Engine) OnFileActivity(event fsnotify.Event) {
	if !e.watcher.Enabled() {
		return
	}

	relPath := strings.TrimPrefix(event.Name, e.localPath)
	for _, exclude := range e.backend.ExcludePaths() {
		if strings.Contains(relPath, exclude) {
			return
		}
	}

	e.log.WithField("path", relPath).Debugf("%s event", event.Op)
	e.disableRemote()

	e.changeLock.Lock()
	first := !e.hasChanged
	e.hasChanged = true
	e.changeLock.Unlock()

	e.lock.Lock()
	e.isBuffering = true
	e.lock.Unlock()

	if first {
		e.log.Debug("Changes found, checking if settled")
		e.fireChangesDetected()
	}
}

// Close stops the timers and the file watcher. A sync that's in progress
// runs to completion. The listener is shared with other folders, so it's
// left for the registry to close.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	e.timers.Wait()
	return e.watcher.Close()
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

// Name returns the folder's name.
func (e *Engine) Name() string {
	return e.name
}

// LocalPath returns the folder's location on disk.
func (e *Engine) LocalPath() string {
	return e.localPath
}

// RemoteURL returns the address the folder syncs with.
func (e *Engine) RemoteURL() *url.URL {
	return e.remoteURL
}

// Identifier returns the folder's identifier, which is also the channel
// that its announcements are sent on.
func (e *Engine) Identifier() string {
	return e.identifier
}

// Listener returns the listener that the folder receives announcements
// from.
func (e *Engine) Listener() *listener.Listener {
	return e.listener
}

// Status returns the folder's current sync status.
func (e *Engine) Status() Status {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.status
}

// ServerOnline returns false if the last sync failed to reach the remote.
func (e *Engine) ServerOnline() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.serverOnline
}

// IsBuffering returns whether there are local changes that haven't settled
// yet.
func (e *Engine) IsBuffering() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.isBuffering
}

// IsSyncing returns whether the folder is syncing or about to.
func (e *Engine) IsSyncing() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.status == SyncUp || e.status == SyncDown || e.isBuffering
}

// ChangeSets returns the folder's recent history, most recent first.
func (e *Engine) ChangeSets() []changeset.ChangeSet {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]changeset.ChangeSet{}, e.changeSets...)
}

// ProgressPercentage returns the progress of the current sync.
func (e *Engine) ProgressPercentage() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.progressPercentage
}

// ProgressSpeed returns the transfer speed of the current sync.
func (e *Engine) ProgressSpeed() string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.progressSpeed
}

func (e *Engine) setPollInterval(interval time.Duration) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.pollInterval = interval
}

func (e *Engine) setServerOnline(online bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.serverOnline = online
}

func (e *Engine) refreshChangeSets() {
	changeSets, err := e.backend.ChangeSets(backend.DefaultHistoryLength)
	if err != nil {
		e.log.WithError(err).Warn("Failed to load change sets")
		return
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	e.changeSets = changeSets
}
