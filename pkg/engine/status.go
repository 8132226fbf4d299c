package engine

// Status is the sync state of a folder.
type Status int

const (
	// Idle means that the folder isn't syncing.
	Idle Status = iota

	// SyncUp means that local changes are being uploaded.
	SyncUp

	// SyncDown means that remote changes are being downloaded.
	SyncDown

	// Error means that the last sync failed. The folder stays in this state
	// until the next successful sync.
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SyncUp:
		return "SyncUp"
	case SyncDown:
		return "SyncDown"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}
