package listener

import (
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/orangeshare/pkg/metrics"
)

const (
	// maxRecentAnnouncements is the number of messages remembered per channel
	// for deduplication.
	maxRecentAnnouncements = 10

	reconnectInterval = 60 * time.Second
)

// Listener is a persistent connection to a notification server. It
// deduplicates announcements, queues outbound announcements while
// disconnected, and reconnects periodically.
//
// A Listener is shared by every folder that uses the same server, so all of
// its per-channel state is keyed by folder identifier.
type Listener struct {
	Server *url.URL

	transport Transport
	clock     clockwork.Clock
	log       *log.Entry

	lock     sync.Mutex
	channels []string

	// recent maps a channel to a cache of recently processed messages. The
	// cache is used as a FIFO: entries are only added when they're not
	// already present, and lookups use Contains, which doesn't update
	// recency.
	recent    map[string]*lru.Cache
	queueUp   map[string]Announcement
	queueDown map[string]Announcement

	handlerLock          sync.RWMutex
	connectedHandlers    []func()
	disconnectedHandlers []func()
	receivedHandlers     []func(Announcement)

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Listener for `server` that listens to `channel`. The
// reconnect timer starts immediately, but the first connection attempt is
// left to the caller.
func New(server *url.URL, channel string, newTransport TransportFunc, clock clockwork.Clock) *Listener {
	l := &Listener{
		Server:    server,
		clock:     clock,
		log:       log.WithField("server", server.String()),
		recent:    map[string]*lru.Cache{},
		queueUp:   map[string]Announcement{},
		queueDown: map[string]Announcement{},
		stop:      make(chan struct{}),
	}
	if channel != "" {
		l.channels = append(l.channels, channel)
	}
	l.transport = newTransport(server, l)

	go l.runReconnectTimer()
	return l
}

func (l *Listener) runReconnectTimer() {
	ticker := l.clock.NewTicker(reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if !l.IsConnected() && !l.IsConnecting() {
				l.Reconnect()
			}
		case <-l.stop:
			return
		}
	}
}

// Connect starts connecting to the server.
func (l *Listener) Connect() {
	l.transport.Connect()
}

// Reconnect retries the connection to the server.
func (l *Listener) Reconnect() {
	l.log.Debug("Trying to reconnect")
	l.Connect()
}

// IsConnected returns whether the listener is connected.
func (l *Listener) IsConnected() bool {
	return l.transport.IsConnected()
}

// IsConnecting returns whether a connection attempt is in progress.
func (l *Listener) IsConnecting() bool {
	return l.transport.IsConnecting()
}

// Channels returns the channels the listener is subscribed to.
func (l *Listener) Channels() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string{}, l.channels...)
}

// AlsoListenTo subscribes to `channel`. It's a no-op if the channel is
// already subscribed, or if the listener isn't connected. Callers should
// retry once the listener connects.
func (l *Listener) AlsoListenTo(channel string) {
	if !l.IsConnected() {
		return
	}

	l.lock.Lock()
	if containsString(l.channels, channel) {
		l.lock.Unlock()
		return
	}
	l.channels = append(l.channels, channel)
	l.lock.Unlock()

	l.log.WithField("channel", channel).Debug("Subscribing to channel")
	if err := l.transport.Subscribe(channel); err != nil {
		l.log.WithError(err).WithField("channel", channel).Warn("Failed to subscribe to channel")
	}
}

// Announce sends `announcement` to the server, unless it was recently
// processed. If the listener is disconnected, the announcement is queued
// and replaces any announcement that's already queued for the same channel.
func (l *Listener) Announce(announcement Announcement) {
	ctxLog := l.log.WithFields(log.Fields{
		"channel": announcement.FolderIdentifier,
		"message": announcement.Message,
	})

	l.lock.Lock()
	if l.isRecentLocked(announcement) {
		l.lock.Unlock()
		ctxLog.Debug("Already processed message")
		metrics.RecordAnnouncement(metrics.AnnouncementDuplicate)
		return
	}

	if !l.IsConnected() {
		l.queueUp[announcement.FolderIdentifier] = announcement
		l.lock.Unlock()
		ctxLog.Debug("Not connected. Queuing message")
		metrics.RecordAnnouncement(metrics.AnnouncementQueued)
		return
	}
	l.lock.Unlock()

	// Not under the lock. Writes to a stalled server block until they time out.
	err := l.transport.Announce(announcement)

	l.lock.Lock()
	defer l.lock.Unlock()
	if err != nil {
		ctxLog.WithError(err).Warn("Failed to announce. Queuing message")
		// Don't clobber a newer message queued while we were sending.
		if _, ok := l.queueUp[announcement.FolderIdentifier]; !ok {
			l.queueUp[announcement.FolderIdentifier] = announcement
		}
		metrics.RecordAnnouncement(metrics.AnnouncementQueued)
		return
	}

	ctxLog.Debug("Announced message")
	l.addRecentLocked(announcement)
	metrics.RecordAnnouncement(metrics.AnnouncementSent)
}

// HandleConnected is called by the transport once it connects. It notifies
// the Connected handlers, and then delivers the queued announcements.
func (l *Listener) HandleConnected() {
	l.log.Info("Listening for announcements")
	metrics.SetListenerConnected(l.Server.String(), true)

	l.handlerLock.RLock()
	handlers := append([]func(){}, l.connectedHandlers...)
	l.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler()
	}

	l.lock.Lock()
	queued := l.queueUp
	l.queueUp = map[string]Announcement{}
	l.lock.Unlock()

	if len(queued) > 0 {
		l.log.Debugf("Delivering %d queued messages", len(queued))
	}
	for _, announcement := range queued {
		l.Announce(announcement)
	}
}

// HandleDisconnected is called by the transport when the connection is lost.
// The queues are left untouched.
func (l *Listener) HandleDisconnected(reason string) {
	l.log.WithField("reason", reason).Info("Disconnected from notification server")
	metrics.SetListenerConnected(l.Server.String(), false)

	l.handlerLock.RLock()
	handlers := append([]func(){}, l.disconnectedHandlers...)
	l.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler()
	}
}

// HandleAnnouncement is called by the transport when an announcement
// arrives. Announcements that were recently processed are dropped.
// Otherwise, the Received handlers are called synchronously.
func (l *Listener) HandleAnnouncement(announcement Announcement) {
	ctxLog := l.log.WithFields(log.Fields{
		"channel": announcement.FolderIdentifier,
		"message": announcement.Message,
	})

	l.lock.Lock()
	if l.isRecentLocked(announcement) {
		l.lock.Unlock()
		ctxLog.Debug("Ignoring previously processed message")
		metrics.RecordAnnouncement(metrics.AnnouncementIgnored)
		return
	}
	l.addRecentLocked(announcement)
	l.queueDown[announcement.FolderIdentifier] = announcement
	l.lock.Unlock()

	ctxLog.Debug("Processing message")
	metrics.RecordAnnouncement(metrics.AnnouncementReceived)

	l.handlerLock.RLock()
	handlers := append([]func(Announcement){}, l.receivedHandlers...)
	l.handlerLock.RUnlock()
	for _, handler := range handlers {
		handler(announcement)
	}
}

// AddConnectedHandler registers a function to call when the listener connects.
func (l *Listener) AddConnectedHandler(fn func()) {
	l.handlerLock.Lock()
	defer l.handlerLock.Unlock()
	l.connectedHandlers = append(l.connectedHandlers, fn)
}

// AddDisconnectedHandler registers a function to call when the listener
// disconnects.
func (l *Listener) AddDisconnectedHandler(fn func()) {
	l.handlerLock.Lock()
	defer l.handlerLock.Unlock()
	l.disconnectedHandlers = append(l.disconnectedHandlers, fn)
}

// AddReceivedHandler registers a function to call for each new inbound
// announcement.
func (l *Listener) AddReceivedHandler(fn func(Announcement)) {
	l.handlerLock.Lock()
	defer l.handlerLock.Unlock()
	l.receivedHandlers = append(l.receivedHandlers, fn)
}

// Queued returns the announcement waiting to be sent on `channel`, if any.
func (l *Listener) Queued(channel string) (Announcement, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	announcement, ok := l.queueUp[channel]
	return announcement, ok
}

// LastReceived returns the latest announcement received on `channel`, if any.
func (l *Listener) LastReceived(channel string) (Announcement, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	announcement, ok := l.queueDown[channel]
	return announcement, ok
}

// Dispose stops the reconnect timer and closes the connection.
func (l *Listener) Dispose() {
	l.stopOnce.Do(func() {
		close(l.stop)
		if err := l.transport.Close(); err != nil {
			l.log.WithError(err).Warn("Failed to close connection")
		}
	})
}

func (l *Listener) isRecentLocked(announcement Announcement) bool {
	cache, ok := l.recent[announcement.FolderIdentifier]
	if !ok {
		return false
	}
	return cache.Contains(announcement.Message)
}

func (l *Listener) addRecentLocked(announcement Announcement) {
	cache, ok := l.recent[announcement.FolderIdentifier]
	if !ok {
		// lru.New only fails for non-positive sizes.
		cache, _ = lru.New(maxRecentAnnouncements)
		l.recent[announcement.FolderIdentifier] = cache
	}

	if !cache.Contains(announcement.Message) {
		cache.Add(announcement.Message, struct{}{})
	}
}

// RecentMessages returns the remembered messages for `channel`, oldest first.
func (l *Listener) RecentMessages(channel string) (messages []string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	cache, ok := l.recent[channel]
	if !ok {
		return nil
	}
	for _, key := range cache.Keys() {
		messages = append(messages, key.(string))
	}
	return messages
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
