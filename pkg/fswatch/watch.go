package fswatch

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/orangeshare/pkg/errors"
)

var fs = afero.NewOsFs()

// Watcher watches a folder and all of its subdirectories. Events are passed
// to the callback only while the watcher is enabled.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	onEvent func(fsnotify.Event)

	lock    sync.Mutex
	enabled bool

	done chan struct{}
}

// New starts watching `root`. The returned watcher is enabled.
func New(root string, onEvent func(fsnotify.Event)) (*Watcher, error) {
	pathsToWatch, err := getPathsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}
			return nil, errors.WithContext(err, "watch "+path)
		}
	}

	w := &Watcher{
		root:    root,
		watcher: watcher,
		onEvent: onEvent,
		enabled: true,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				w.watchNewDir(event.Name)
			}
			w.dispatch(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).WithField("path", w.root).Warn("File watcher error")
		}
	}
}

// watchNewDir starts watching `path` if it's a directory. fsnotify doesn't
// watch recursively, so directories created after startup need to be added
// explicitly.
func (w *Watcher) watchNewDir(path string) {
	fi, err := fs.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}

	paths, err := getPathsToWatch(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("Failed to list new directory")
		return
	}
	for _, p := range paths {
		if err := w.watcher.Add(p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to watch new directory")
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event) {
	if !w.Enabled() {
		return
	}
	w.onEvent(event)
}

// Enable resumes delivering events.
func (w *Watcher) Enable() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.enabled = true
}

// Disable stops delivering events. Events that happen while the watcher is
// disabled are dropped.
func (w *Watcher) Disable() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.enabled = false
}

// Enabled returns whether events are being delivered.
func (w *Watcher) Enabled() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.enabled
}

// Close stops watching and releases the file handles.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

// getPathsToWatch returns `root` and all directories beneath it.
func getPathsToWatch(root string) (paths []string, err error) {
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
