// Package backend defines the storage capability that sync engines drive, and
// a registry of the available implementations.
package backend

import (
	"net/url"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/orangeshare/pkg/changeset"
	"github.com/sidkik/orangeshare/pkg/errors"
)

// DefaultHistoryLength is the number of change sets the engine keeps.
const DefaultHistoryLength = 30

// Backend performs the actual synchronization of a folder.
type Backend interface {
	// ComputeIdentifier derives a stable identifier for the folder. It's only
	// called when the folder doesn't have a cached identifier yet.
	ComputeIdentifier() (string, error)

	// CurrentRevision returns the current revision, or an empty string if the
	// folder has no revisions yet.
	CurrentRevision() string

	HasLocalChanges() bool
	HasRemoteChanges() bool
	HasUnsyncedChanges() bool
	SetHasUnsyncedChanges(bool)

	SyncUp() bool
	SyncDown() bool

	// ChangeSets returns up to `count` change sets, most recent first.
	ChangeSets(count int) ([]changeset.ChangeSet, error)

	// ExcludePaths returns path fragments that are ignored when watching
	// the folder and calculating its size.
	ExcludePaths() []string
}

// Events is implemented by the engine to receive progress and conflict
// notifications from a backend.
type Events interface {
	ReportProgress(percentage float64, speed string)
	ReportConflictResolved()
}

// Reporter is implemented by backends that report progress or conflicts.
type Reporter interface {
	SetEvents(Events)
}

// Options contains the settings used to construct a backend.
type Options struct {
	LocalPath string
	RemoteURL *url.URL
	User      changeset.User
	Log       *log.Entry
}

// Constructor creates a backend for a folder.
type Constructor func(Options) (Backend, error)

var (
	registryLock sync.Mutex
	registry     = map[string]Constructor{}
)

// Register makes a backend available under `name`. Registering the same name
// twice replaces the previous constructor.
func Register(name string, constructor Constructor) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[name] = constructor
}

// New creates the backend registered under `name`.
func New(name string, opts Options) (Backend, error) {
	registryLock.Lock()
	constructor, ok := registry[name]
	registryLock.Unlock()

	if !ok {
		return nil, errors.UnknownBackendError{Name: name}
	}

	if opts.Log == nil {
		opts.Log = log.WithField("backend", name)
	}
	return constructor(opts)
}

// Names returns the registered backend names in sorted order.
func Names() (names []string) {
	registryLock.Lock()
	defer registryLock.Unlock()

	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
