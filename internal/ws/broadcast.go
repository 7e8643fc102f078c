package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wabridge/backend/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the observer limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

// StateSource supplies the current session state for late-join replay.
type StateSource interface {
	Snapshot() session.Snapshot
}

type client struct {
	id   string
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans normalized session events out to every connected
// observer. Delivery is best-effort: there are no acks and no retries, and
// an observer that cannot keep up is disconnected. A newly joined observer
// is replayed the current state so it never starts inconsistent.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	source   StateSource
	maxConns int // 0 means unlimited
}

func NewBroadcaster(source StateSource, maxConns int) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		source:   source,
		maxConns: maxConns,
	}
}

// SetSource wires the replay source after construction. The broadcaster
// and the manager reference each other, so one side has to be attached
// late; call this before accepting observers.
func (b *Broadcaster) SetSource(source StateSource) {
	b.mu.Lock()
	b.source = source
	b.mu.Unlock()
}

// AddClient registers a websocket connection as an observer and replays
// the current state to it: status first (the baseline), then whichever
// auth artifact is pending. Replay goes only to this client, in order,
// before it sees any broadcast.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	// Holding the write lock through the replay enqueue keeps broadcasts
	// from interleaving: the new observer sees the snapshot first, then
	// only events newer than it.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true

	if b.source == nil {
		go c.writePump()
		return c, nil
	}

	snap := b.source.Snapshot()
	replay := []WSMessage{{Type: MsgStatusUpdate, Payload: StatusPayload{
		Status: snap.Status,
		User:   snap.User,
	}}}
	if snap.QR != "" {
		replay = append(replay, WSMessage{Type: MsgQRCode, Payload: snap.QR})
	}
	if snap.PairingCode != "" {
		replay = append(replay, WSMessage{Type: MsgPairingCode, Payload: snap.PairingCode})
	}
	for _, msg := range replay {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("replay marshal error: %v", err)
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow already; it will be evicted on the next
			// broadcast anyway.
		}
	}

	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish implements session.Sink.
func (b *Broadcaster) Publish(ev session.Event) {
	msg, ok := messageFor(ev)
	if !ok {
		return
	}
	b.broadcast(msg)
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	// Sends stay under the read lock: RemoveClient closes send channels
	// under the write lock, and a non-blocking send on a closed channel
	// panics. Slow clients are collected here and evicted after the lock
	// is released, since eviction needs the write lock.
	b.mu.RLock()
	var slow []*client
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Printf("ws client %s too slow, disconnecting", c.id)
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
