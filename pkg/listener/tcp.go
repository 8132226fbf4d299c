package listener

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/orangeshare/pkg/errors"
)

const (
	tcpDialTimeout  = 10 * time.Second
	tcpWriteTimeout = 10 * time.Second
	tcpPingPeriod   = 30 * time.Second
)

// tcpTransport speaks the fanout line protocol:
//
//	client: "subscribe <channel>\n", "announce <channel> <message>\n", "ping\n"
//	server: "<channel>!<message>\n", "debug!<text>\n", "pong\n"
type tcpTransport struct {
	server  *url.URL
	handler Handler

	// Mocked out for unit testing.
	dial         func(network, address string, timeout time.Duration) (net.Conn, error)
	writeTimeout time.Duration

	lock       sync.Mutex
	conn       net.Conn
	connecting bool
	closed     bool
}

// NewTCPTransport returns a Transport for tcp:// notification servers.
func NewTCPTransport(server *url.URL, handler Handler) Transport {
	return &tcpTransport{
		server:       server,
		handler:      handler,
		dial:         net.DialTimeout,
		writeTimeout: tcpWriteTimeout,
	}
}

func (t *tcpTransport) Connect() {
	t.lock.Lock()
	if t.conn != nil || t.connecting || t.closed {
		t.lock.Unlock()
		return
	}
	t.connecting = true
	t.lock.Unlock()

	go t.connect()
}

func (t *tcpTransport) connect() {
	conn, err := t.dial("tcp", t.server.Host, tcpDialTimeout)
	if err != nil {
		t.lock.Lock()
		t.connecting = false
		t.lock.Unlock()
		t.handler.HandleDisconnected(errors.WithContext(err, "dial").Error())
		return
	}

	for _, channel := range t.handler.Channels() {
		if err := t.writeLine(conn, fmt.Sprintf("subscribe %s\n", channel)); err != nil {
			conn.Close()
			t.lock.Lock()
			t.connecting = false
			t.lock.Unlock()
			t.handler.HandleDisconnected(errors.WithContext(err, "subscribe").Error())
			return
		}
	}

	t.lock.Lock()
	t.connecting = false
	if t.closed {
		t.lock.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.lock.Unlock()

	stopPing := make(chan struct{})
	go t.ping(conn, stopPing)

	t.handler.HandleConnected()
	reason := t.readLoop(conn)
	close(stopPing)

	t.lock.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.lock.Unlock()
	conn.Close()

	t.handler.HandleDisconnected(reason)
}

func (t *tcpTransport) readLoop(conn net.Conn) string {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		announcement, ok := parseTCPLine(line)
		if !ok {
			if line != "" && line != "pong" {
				log.WithField("line", line).Debug("Ignoring unrecognized message")
			}
			continue
		}
		t.handler.HandleAnnouncement(announcement)
	}

	if err := scanner.Err(); err != nil {
		return err.Error()
	}
	return "connection closed by server"
}

func (t *tcpTransport) ping(conn net.Conn, stop chan struct{}) {
	ticker := time.NewTicker(tcpPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.lock.Lock()
			err := t.writeLine(conn, "ping\n")
			t.lock.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// parseTCPLine parses a "<channel>!<message>" line. Debug lines are ignored.
func parseTCPLine(line string) (Announcement, bool) {
	parts := strings.SplitN(line, "!", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == "debug" {
		return Announcement{}, false
	}
	return Announcement{FolderIdentifier: parts[0], Message: parts[1]}, true
}

func (t *tcpTransport) IsConnected() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.conn != nil
}

func (t *tcpTransport) IsConnecting() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.connecting
}

func (t *tcpTransport) Announce(announcement Announcement) error {
	return t.send(fmt.Sprintf("announce %s %s\n",
		announcement.FolderIdentifier, announcement.Message))
}

func (t *tcpTransport) Subscribe(channel string) error {
	return t.send(fmt.Sprintf("subscribe %s\n", channel))
}

func (t *tcpTransport) send(line string) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.conn == nil {
		return errors.New("not connected")
	}
	if err := t.writeLine(t.conn, line); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// writeLine writes `line`, giving up after t.writeTimeout.
func (t *tcpTransport) writeLine(conn net.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	_, err := fmt.Fprint(conn, line)
	return err
}

func (t *tcpTransport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
