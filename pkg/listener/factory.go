package listener

import (
	"net/url"
	"sync"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/orangeshare/pkg/errors"
)

// DefaultServer is the public notification service. Clients subscribe to a
// channel named after the folder identifier, and publish their current
// revision to it after syncing up.
const DefaultServer = "tcp://notifications.sparkleshare.org:1986"

// EndpointConfig resolves the notification server configured for a folder.
// Empty strings mean that nothing is configured.
type EndpointConfig interface {
	FolderAnnouncementsURL(folderName string) string
	GlobalAnnouncementsURL() string
}

// Registry hands out one Listener per notification server, so that folders
// that use the same server share a connection. Listeners live until the
// Registry is closed.
type Registry struct {
	config     EndpointConfig
	clock      clockwork.Clock
	transports map[string]TransportFunc

	lock      sync.Mutex
	listeners []*Listener
}

// NewRegistry creates an empty Registry.
func NewRegistry(config EndpointConfig, clock clockwork.Clock) *Registry {
	return &Registry{
		config: config,
		clock:  clock,
		transports: map[string]TransportFunc{
			"tcp": NewTCPTransport,
			"ws":  NewWebsocketTransport,
			"wss": NewWebsocketTransport,
		},
	}
}

// RegisterTransport sets the transport used for servers with the given URL
// scheme.
func (r *Registry) RegisterTransport(scheme string, fn TransportFunc) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.transports[scheme] = fn
}

// CreateListener returns the Listener for the server configured for
// `folderName`, creating it if necessary. An existing Listener is asked to
// also listen to `folderIdentifier`.
func (r *Registry) CreateListener(folderName, folderIdentifier string) (*Listener, error) {
	server, err := url.Parse(r.resolve(folderName))
	if err != nil {
		return nil, errors.WithContext(err, "parse announcements url")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for _, listener := range r.listeners {
		if listener.Server.String() == server.String() {
			log.WithField("server", server.String()).Debugf(
				"Referred to existing %s listener", server.Scheme)
			listener.AlsoListenTo(folderIdentifier)
			return listener, nil
		}
	}

	newTransport, ok := r.transports[server.Scheme]
	if !ok {
		newTransport = r.transports["tcp"]
	}

	listener := New(server, folderIdentifier, newTransport, r.clock)
	r.listeners = append(r.listeners, listener)
	log.WithField("server", server.String()).Debugf("Issued new %s listener", server.Scheme)
	return listener, nil
}

// resolve picks the server for a folder: the folder's own setting, then the
// global setting, then DefaultServer.
func (r *Registry) resolve(folderName string) string {
	if r.config != nil {
		if uri := r.config.FolderAnnouncementsURL(folderName); uri != "" {
			return uri
		}
		if uri := r.config.GlobalAnnouncementsURL(); uri != "" {
			return uri
		}
	}
	return DefaultServer
}

// Listeners returns all listeners created so far.
func (r *Registry) Listeners() []*Listener {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*Listener{}, r.listeners...)
}

// Close disposes every listener.
func (r *Registry) Close() {
	for _, listener := range r.Listeners() {
		listener.Dispose()
	}
}
