package fabric

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"devv.io/node/internal/controller"
	"devv.io/node/internal/wire"
	dvErrors "devv.io/node/pkg/errors"
)

// WSFabric is a websocket-backed fabric: one outbound connection per peer
// URI, and one inbound HTTP/websocket listener accepting connections from
// peers that publish to topics this node subscribes to. Frame shape is
// spec.md #6's message envelope: Frame 1 the UTF-8 topic string, Frame 2
// `u8 message_type || u8[] payload`.
type WSFabric struct {
	log      *logrus.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[string]*websocket.Conn // uri -> outbound connection

	trace uint64
	inbox chan controller.Inbound
}

// NewWSFabric returns an empty websocket fabric. Peers are dialed lazily by
// Publish; ServeHTTP must be wired into an http.Server for inbound traffic.
func NewWSFabric(log *logrus.Logger) *WSFabric {
	return &WSFabric{
		log:   log,
		peers: make(map[string]*websocket.Conn),
		inbox: make(chan controller.Inbound, inboxBuffer),
	}
}

// dial resolves a shard topic URI to a websocket dial target. Topics are
// plain ws:// or wss:// URLs in this fabric — the shard-topic-to-endpoint
// mapping spec.md leaves external is the identity mapping here.
func (f *WSFabric) dial(uri string) (*websocket.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn, ok := f.peers[uri]; ok {
		return conn, nil
	}
	conn, _, err := websocket.DefaultDialer.Dial(uri, nil)
	if err != nil {
		return nil, err
	}
	f.peers[uri] = conn
	return conn, nil
}

// Publish implements controller.Fabric by writing two frames: a text frame
// holding the topic, then a binary frame holding the encoded message.
func (f *WSFabric) Publish(uri string, msg wire.Message) error {
	conn, err := f.dial(uri)
	if err != nil {
		return dvErrors.Wrap(err, "fabric: dial")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(uri)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, msg.Encode())
}

// Inbox implements controller.Fabric.
func (f *WSFabric) Inbox() <-chan controller.Inbound {
	return f.inbox
}

// ServeHTTP upgrades an inbound connection and reads topic/payload frame
// pairs from it until the connection closes, feeding each decoded message
// into Inbox.
func (f *WSFabric) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).Warn("fabric: websocket upgrade failed")
		return
	}
	go f.readLoop(conn)
}

func (f *WSFabric) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, topicFrame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_, payloadFrame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wire.DecodeMessage(payloadFrame)
		if err != nil {
			f.log.WithError(err).Warn("fabric: dropping malformed frame")
			continue
		}
		ix := atomic.AddUint64(&f.trace, 1)
		f.inbox <- controller.Inbound{SourceURI: string(topicFrame), TraceIx: ix, TraceID: uuid.New(), Message: msg}
	}
}
