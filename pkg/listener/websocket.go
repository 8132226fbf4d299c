package listener

import (
	"context"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/sidkik/orangeshare/pkg/errors"
)

const (
	wsDialTimeout  = 10 * time.Second
	wsWriteTimeout = 10 * time.Second

	wsTypeSubscribe = "subscribe"
	wsTypeAnnounce  = "announce"
)

// wsMessage is the JSON frame exchanged with ws:// and wss:// notification
// servers.
type wsMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Message string `json:"message,omitempty"`
}

type websocketTransport struct {
	server  *url.URL
	handler Handler

	lock       sync.Mutex
	conn       *websocket.Conn
	cancel     context.CancelFunc
	connecting bool
	closed     bool
}

// NewWebsocketTransport returns a Transport for ws:// and wss:// notification
// servers.
func NewWebsocketTransport(server *url.URL, handler Handler) Transport {
	return &websocketTransport{server: server, handler: handler}
}

func (t *websocketTransport) Connect() {
	t.lock.Lock()
	if t.conn != nil || t.connecting || t.closed {
		t.lock.Unlock()
		return
	}
	t.connecting = true
	t.lock.Unlock()

	go t.connect()
}

func (t *websocketTransport) connect() {
	fail := func(err error) {
		t.lock.Lock()
		t.connecting = false
		t.lock.Unlock()
		t.handler.HandleDisconnected(err.Error())
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), wsDialTimeout)
	conn, _, err := websocket.Dial(dialCtx, t.server.String(), nil)
	cancelDial()
	if err != nil {
		fail(errors.WithContext(err, "dial"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	for _, channel := range t.handler.Channels() {
		if err := t.write(ctx, conn, wsMessage{Type: wsTypeSubscribe, Channel: channel}); err != nil {
			cancel()
			conn.Close(websocket.StatusInternalError, "subscribe failed")
			fail(errors.WithContext(err, "subscribe"))
			return
		}
	}

	t.lock.Lock()
	t.connecting = false
	if t.closed {
		t.lock.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	t.conn = conn
	t.cancel = cancel
	t.lock.Unlock()

	t.handler.HandleConnected()
	reason := t.readLoop(ctx, conn)

	t.lock.Lock()
	if t.conn == conn {
		t.conn = nil
		t.cancel = nil
	}
	t.lock.Unlock()
	cancel()
	conn.Close(websocket.StatusNormalClosure, "")

	t.handler.HandleDisconnected(reason)
}

func (t *websocketTransport) readLoop(ctx context.Context, conn *websocket.Conn) string {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err.Error()
		}

		if msg.Type != wsTypeAnnounce || msg.Channel == "" || msg.Message == "" {
			continue
		}
		t.handler.HandleAnnouncement(Announcement{
			FolderIdentifier: msg.Channel,
			Message:          msg.Message,
		})
	}
}

func (t *websocketTransport) write(ctx context.Context, conn *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (t *websocketTransport) IsConnected() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.conn != nil
}

func (t *websocketTransport) IsConnecting() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.connecting
}

func (t *websocketTransport) Announce(announcement Announcement) error {
	return t.send(wsMessage{
		Type:    wsTypeAnnounce,
		Channel: announcement.FolderIdentifier,
		Message: announcement.Message,
	})
}

func (t *websocketTransport) Subscribe(channel string) error {
	return t.send(wsMessage{Type: wsTypeSubscribe, Channel: channel})
}

func (t *websocketTransport) send(msg wsMessage) error {
	t.lock.Lock()
	conn := t.conn
	t.lock.Unlock()

	if conn == nil {
		return errors.New("not connected")
	}
	return t.write(context.Background(), conn, msg)
}

func (t *websocketTransport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.closed = true
	if t.conn == nil {
		return nil
	}
	t.cancel()
	err := t.conn.Close(websocket.StatusNormalClosure, "")
	t.conn = nil
	t.cancel = nil
	return err
}
