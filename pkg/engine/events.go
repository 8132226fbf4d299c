package engine

import (
	"github.com/sidkik/orangeshare/pkg/changeset"
)

// AddStatusHandler registers a function to call when the sync status
// changes.
func (e *Engine) AddStatusHandler(fn func(Status)) {
	e.handlerLock.Lock()
	defer e.handlerLock.Unlock()
	e.statusHandlers = append(e.statusHandlers, fn)
}

// AddProgressHandler registers a function to call with sync progress. It's
// called at most once per second.
func (e *Engine) AddProgressHandler(fn func(percentage float64, speed string)) {
	e.handlerLock.Lock()
	defer e.handlerLock.Unlock()
	e.progressHandlers = append(e.progressHandlers, fn)
}

// AddChangeSetHandler registers a function to call when a download brings in
// a new change set.
func (e *Engine) AddChangeSetHandler(fn func(changeset.ChangeSet)) {
	e.handlerLock.Lock()
	defer e.handlerLock.Unlock()
	e.changeSetHandlers = append(e.changeSetHandlers, fn)
}

// AddConflictHandler registers a function to call when the backend resolves
// a conflict.
func (e *Engine) AddConflictHandler(fn func()) {
	e.handlerLock.Lock()
	defer e.handlerLock.Unlock()
	e.conflictHandlers = append(e.conflictHandlers, fn)
}

// AddChangesDetectedHandler registers a function to call when local changes
// start buffering.
func (e *Engine) AddChangesDetectedHandler(fn func()) {
	e.handlerLock.Lock()
	defer e.handlerLock.Unlock()
	e.changesDetectedHandlers = append(e.changesDetectedHandlers, fn)
}

func (e *Engine) setStatus(status Status) {
	e.lock.Lock()
	e.status = status
	e.lock.Unlock()

	e.handlerLock.RLock()
	handlers := append([]func(Status){}, e.statusHandlers...)
	e.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler(status)
	}
}

// ReportProgress is called by the backend during a sync. Updates are
// dropped if there's nobody to report them to, or if the last update was
// less than a second ago. 100% is reported as 99% since the sync isn't done
// until the status goes back to Idle.
func (e *Engine) ReportProgress(percentage float64, speed string) {
	e.handlerLock.RLock()
	handlers := append([]func(float64, string){}, e.progressHandlers...)
	e.handlerLock.RUnlock()
	if len(handlers) == 0 {
		return
	}

	e.lock.Lock()
	if e.clock.Since(e.lastProgress) < progressInterval {
		e.lock.Unlock()
		return
	}
	if percentage >= 100 {
		percentage = 99
	}
	e.progressPercentage = percentage
	e.progressSpeed = speed
	e.lastProgress = e.clock.Now()
	e.lock.Unlock()

	for _, handler := range handlers {
		handler(percentage, speed)
	}
}

// ReportConflictResolved is called by the backend after it resolves a
// conflict. The resolution needs to be uploaded.
func (e *Engine) ReportConflictResolved() {
	e.backend.SetHasUnsyncedChanges(true)

	e.handlerLock.RLock()
	handlers := append([]func(){}, e.conflictHandlers...)
	e.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler()
	}
}

func (e *Engine) resetProgress() {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.progressPercentage = 0
	e.progressSpeed = ""
}

func (e *Engine) fireChangeSet(cs changeset.ChangeSet) {
	e.handlerLock.RLock()
	handlers := append([]func(changeset.ChangeSet){}, e.changeSetHandlers...)
	e.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler(cs)
	}
}

func (e *Engine) fireChangesDetected() {
	e.handlerLock.RLock()
	handlers := append([]func(){}, e.changesDetectedHandlers...)
	e.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler()
	}
}
