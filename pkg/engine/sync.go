package engine

import (
	"context"
	"time"

	"github.com/sidkik/orangeshare/pkg/errors"
	"github.com/sidkik/orangeshare/pkg/listener"
	"github.com/sidkik/orangeshare/pkg/metrics"
)

var errClosed = errors.New("engine closed")

// Initialize uploads changes made while the engine wasn't running, and then
// starts the timers.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.backend.HasLocalChanges() {
		if err := e.acquire(ctx, nil); err != nil {
			return errors.WithContext(err, "wait for sync")
		}
		e.log.Info("Uploading changes made while offline")
		e.uploadLocalChanges()
		e.release()
	}

	e.startOnce.Do(func() {
		e.timers.Add(2)
		go e.runTimer(localInterval, e.checkForChanges)
		go e.runTimer(remoteInterval, e.pollRemote)
	})
	return nil
}

// SyncUp uploads local changes. It waits for the sync in progress, if any.
func (e *Engine) SyncUp(ctx context.Context) error {
	if err := e.acquire(ctx, nil); err != nil {
		return err
	}
	defer e.release()
	e.syncUpBase()
	return nil
}

// SyncDown downloads remote changes. It waits for the sync in progress, if
// any.
func (e *Engine) SyncDown(ctx context.Context) error {
	if err := e.acquire(ctx, nil); err != nil {
		return err
	}
	defer e.release()
	e.syncDownBase()
	return nil
}

func (e *Engine) runTimer(interval time.Duration, fn func()) {
	defer e.timers.Done()

	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			fn()
		case <-e.stop:
			return
		}
	}
}

// checkForChanges samples the folder size while there are unsettled changes,
// and uploads them once the size stops changing.
func (e *Engine) checkForChanges() {
	e.watchLock.Lock()
	enabled := e.localEnabled
	e.watchLock.Unlock()
	if !enabled {
		return
	}

	e.changeLock.Lock()
	if !e.hasChanged {
		e.changeLock.Unlock()
		return
	}

	size := folderSize(e.localPath, e.backend.ExcludePaths())
	metrics.SetFolderSize(e.name, size)
	if !e.sizes.push(size) {
		e.changeLock.Unlock()
		return
	}
	e.hasChanged = false
	e.changeLock.Unlock()

	e.lock.Lock()
	e.isBuffering = false
	e.lock.Unlock()

	e.log.Debug("Changes have settled")
	if err := e.acquire(context.Background(), nil); err != nil {
		return
	}
	defer e.release()
	e.uploadLocalChanges()
}

// pollRemote downloads remote changes once the poll interval has passed, and
// retries uploads that failed while the remote was reachable.
func (e *Engine) pollRemote() {
	if !e.remoteEnabled.Load() || !e.tryAcquire() {
		return
	}
	defer e.release()

	e.lock.Lock()
	timeToPoll := e.clock.Since(e.lastPoll) > e.pollInterval
	if timeToPoll {
		e.lastPoll = e.clock.Now()
	}
	e.lock.Unlock()

	// An offline remote is probed with a download, since that's the only way
	// for it to come back online.
	if timeToPoll && (!e.ServerOnline() || e.backend.HasRemoteChanges()) {
		e.syncDownBase()
	}

	if e.backend.HasUnsyncedChanges() && !e.IsSyncing() && e.ServerOnline() {
		e.syncUpBase()
	}
}

// uploadLocalChanges uploads until the backend has no local changes left, or
// the remote can't be reached. The caller must hold the sync semaphore.
func (e *Engine) uploadLocalChanges() {
	e.disableWatching()
	for e.backend.HasLocalChanges() {
		e.syncUpBase()
		if e.Status() == Error || !e.ServerOnline() {
			break
		}
	}
	e.enableWatching()
	e.enableRemote()
}

// syncUpBase uploads local changes. If the upload fails, remote changes are
// downloaded and the upload is retried once. The watcher and the poll timer
// are always running again when it returns. The caller must hold the sync
// semaphore.
func (e *Engine) syncUpBase() {
	defer func() {
		e.enableRemote()
		e.enableWatching()
		e.resetProgress()
	}()

	e.disableWatching()
	e.disableRemote()

	e.log.Info("Syncing up")
	e.setStatus(SyncUp)

	if e.backend.SyncUp() {
		e.finishSyncUp()
		return
	}

	e.log.Warn("Sync up failed. Syncing down before retrying")
	metrics.RecordSync(metrics.DirectionUp, false)
	e.backend.SetHasUnsyncedChanges(true)
	e.syncDownBase()
	e.disableWatching()

	if e.ServerOnline() {
		// The download uploads unsynced changes itself when it can.
		if !e.backend.HasUnsyncedChanges() {
			return
		}
		if e.backend.SyncUp() {
			e.finishSyncUp()
			return
		}
		metrics.RecordSync(metrics.DirectionUp, false)
	}

	e.log.Error("Sync up failed")
	e.setServerOnline(false)
	e.setStatus(Error)
}

func (e *Engine) finishSyncUp() {
	e.log.Info("Sync up done")
	metrics.RecordSync(metrics.DirectionUp, true)
	e.backend.SetHasUnsyncedChanges(false)
	e.refreshChangeSets()
	e.setStatus(Idle)
	e.announce()
}

// syncDownBase downloads remote changes, and uploads whatever the download
// left unsynced. It always ends in the Idle status with the watcher and the
// poll timer running. The caller must hold the sync semaphore.
func (e *Engine) syncDownBase() {
	e.log.Info("Syncing down")
	e.disableRemote()
	e.disableWatching()
	e.setStatus(SyncDown)

	preSyncRevision := e.backend.CurrentRevision()

	if e.backend.SyncDown() {
		e.log.Info("Sync down done")
		metrics.RecordSync(metrics.DirectionDown, true)
		e.setServerOnline(true)
		e.refreshChangeSets()

		if preSyncRevision != e.backend.CurrentRevision() {
			changeSets := e.ChangeSets()
			if len(changeSets) > 0 && !containsString(changeSets[0].Added, MarkerFile) {
				e.fireChangeSet(changeSets[0])
			}
		}

		// Resolving a conflict can leave local changes behind. They're only
		// uploaded once here, and the remote timer retries afterwards.
		if e.backend.HasUnsyncedChanges() {
			e.setStatus(SyncUp)
			if e.backend.SyncUp() {
				metrics.RecordSync(metrics.DirectionUp, true)
				e.backend.SetHasUnsyncedChanges(false)
				e.refreshChangeSets()
				e.announce()
			} else {
				metrics.RecordSync(metrics.DirectionUp, false)
				e.log.Warn("Failed to upload unsynced changes")
			}
		}
	} else {
		e.log.Error("Sync down failed")
		metrics.RecordSync(metrics.DirectionDown, false)
		e.setServerOnline(false)
		e.setStatus(Error)
	}

	e.resetProgress()
	e.setStatus(Idle)
	e.enableRemote()
	e.enableWatching()
}

func (e *Engine) announce() {
	e.listener.Announce(listener.Announcement{
		FolderIdentifier: e.identifier,
		Message:          e.backend.CurrentRevision(),
	})
}

// acquire takes the sync semaphore. It gives up when `ctx` is done, when
// `timeout` fires, or when the engine is closed.
func (e *Engine) acquire(ctx context.Context, timeout <-chan time.Time) error {
	select {
	case e.syncSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return errors.ErrSyncTimeout
	case <-e.stop:
		return errClosed
	}
}

func (e *Engine) tryAcquire() bool {
	select {
	case e.syncSem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) release() {
	<-e.syncSem
}

func (e *Engine) disableWatching() {
	e.watchLock.Lock()
	defer e.watchLock.Unlock()
	e.watcher.Disable()
	e.localEnabled = false
}

func (e *Engine) enableWatching() {
	e.watchLock.Lock()
	defer e.watchLock.Unlock()
	e.watcher.Enable()
	e.localEnabled = true
}

func (e *Engine) disableRemote() {
	e.remoteEnabled.Store(false)
}

func (e *Engine) enableRemote() {
	e.remoteEnabled.Store(true)
}
