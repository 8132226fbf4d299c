package listener

import (
	"net/url"
)

// Announcement tells peers that a folder has a new revision. Message is
// usually the revision hash.
type Announcement struct {
	FolderIdentifier string
	Message          string
}

// Transport is a connection to a notification server. Implementations report
// connection changes and inbound announcements to their Handler.
type Transport interface {
	// Connect starts connecting in the background. The Handler is notified
	// once the connection succeeds or fails.
	Connect()
	IsConnected() bool
	IsConnecting() bool

	Announce(Announcement) error
	Subscribe(channel string) error
	Close() error
}

// Handler receives callbacks from a Transport.
type Handler interface {
	// Channels returns the channels to subscribe to after connecting.
	Channels() []string

	HandleConnected()
	HandleDisconnected(reason string)
	HandleAnnouncement(Announcement)
}

// TransportFunc creates a Transport for the given server.
type TransportFunc func(server *url.URL, handler Handler) Transport
