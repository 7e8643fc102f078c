package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wabridge/backend/internal/creds"
	"github.com/wabridge/backend/internal/phone"
	"github.com/wabridge/backend/internal/protocol"
)

// Manager owns the single live protocol connection and the session's
// lifecycle state. All mutation happens on one dispatch loop (Run):
// adapter events and control commands are serialized onto it, so state
// transitions are atomic with respect to each other.
//
// Invariants the loop maintains:
//   - at most one connection handle exists; starting a new attempt
//     discards the previous handle first
//   - a pending QR and a pending pairing code are mutually exclusive
//   - the authenticated user is set only while connected
//   - events from superseded handles are dropped (identity comparison)
type Manager struct {
	dialer         protocol.Dialer
	store          *creds.Store
	sink           Sink
	reconnectDelay time.Duration

	events chan protocol.Event
	cmds   chan command
	done   chan struct{}

	// Loop-owned; never touched outside Run and its helpers.
	client      protocol.Client
	reconnect   *time.Timer
	reconnectID int

	// Guarded by mu so Snapshot can be served from any goroutine.
	mu     sync.RWMutex
	status Status
	qr     string
	code   string
	user   *protocol.UserIdentity
}

type cmdKind int

const (
	cmdReconnect cmdKind = iota
	cmdPairingCode
	cmdDisconnect
	cmdRestart
)

type command struct {
	kind        cmdKind
	ctx         context.Context
	phone       string
	reconnectID int
	reply       chan result
}

type result struct {
	code string
	err  error
}

func NewManager(dialer protocol.Dialer, store *creds.Store, sink Sink, reconnectDelay time.Duration) *Manager {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &Manager{
		dialer:         dialer,
		store:          store,
		sink:           sink,
		reconnectDelay: reconnectDelay,
		events:         make(chan protocol.Event, 16),
		cmds:           make(chan command, 8),
		done:           make(chan struct{}),
		status:         Disconnected,
	}
}

// Run starts the first connection attempt and then dispatches adapter
// events and control commands until ctx is cancelled. It must be called
// exactly once.
func (m *Manager) Run(ctx context.Context) {
	log.Println("Session manager started")
	m.startConnection(ctx)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case ev := <-m.events:
			m.handleEvent(ctx, ev)
		case cmd := <-m.cmds:
			m.handleCommand(ctx, cmd)
		}
	}
}

func (m *Manager) shutdown() {
	m.cancelReconnect()
	if m.client != nil {
		// Transport close only; credentials stay valid for next start.
		m.client.Close()
		m.client = nil
	}
	close(m.done)
	log.Println("Session manager stopped")
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		Status:      m.status,
		QR:          m.qr,
		PairingCode: m.code,
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// RequestPairingCode normalizes and validates rawPhone, then asks the
// current connection for a pairing code. Fails with ErrInvalidState unless
// an unregistered connection exists, and with ErrInvalidPhone on bad
// input. Returns the formatted code (dash every four characters).
func (m *Manager) RequestPairingCode(ctx context.Context, rawPhone string) (string, error) {
	res, err := m.send(ctx, command{kind: cmdPairingCode, ctx: ctx, phone: rawPhone})
	if err != nil {
		return "", err
	}
	return res.code, res.err
}

// Disconnect logs the session out, discards the connection handle and
// leaves the manager disconnected with no reconnect scheduled. Succeeds
// as a no-op when no connection exists.
func (m *Manager) Disconnect(ctx context.Context) error {
	res, err := m.send(ctx, command{kind: cmdDisconnect, ctx: ctx})
	if err != nil {
		return err
	}
	return res.err
}

// Restart closes the current transport without logging out and starts a
// fresh connection attempt with the same credentials.
func (m *Manager) Restart(ctx context.Context) error {
	res, err := m.send(ctx, command{kind: cmdRestart, ctx: ctx})
	if err != nil {
		return err
	}
	return res.err
}

func (m *Manager) send(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-m.done:
		return result{}, ErrStopped
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-m.done:
		return result{}, ErrStopped
	}
}

func (m *Manager) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdReconnect:
		// Stale fire: a newer schedule or a cancellation superseded it.
		if m.reconnect == nil || cmd.reconnectID != m.reconnectID {
			return
		}
		m.reconnect = nil
		log.Println("Reconnecting after delay")
		m.startConnection(ctx)
	case cmdPairingCode:
		code, err := m.requestPairingCode(cmd.ctx, cmd.phone)
		cmd.reply <- result{code: code, err: err}
	case cmdDisconnect:
		cmd.reply <- result{err: m.disconnect(cmd.ctx)}
	case cmdRestart:
		cmd.reply <- result{err: m.restart(ctx)}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev protocol.Event) {
	if ev.Client != m.client {
		// A superseded handle is still emitting; its view of the world
		// no longer exists.
		log.Println("Dropping event from stale connection handle")
		return
	}

	switch ev.Kind {
	case protocol.EventQR:
		m.mu.Lock()
		m.qr = ev.QR
		m.code = ""
		m.mu.Unlock()
		log.Println("QR code received")
		m.publish(Event{Type: EventQR, QR: ev.QR})

	case protocol.EventOpen:
		m.mu.Lock()
		m.status = Connected
		m.qr = ""
		m.code = ""
		m.user = ev.User
		m.mu.Unlock()
		if ev.User != nil {
			log.Printf("Connected as %s", ev.User.ID)
		}
		m.publish(Event{Type: EventStatus, Status: Connected, User: ev.User})

	case protocol.EventClosed:
		m.handleClosed(ev)

	case protocol.EventCreds:
		if err := m.store.Save(ev.Creds); err != nil {
			log.Printf("Saving credentials: %v", err)
		}

	case protocol.EventMessage:
		m.publish(Event{Type: EventMessage, Message: ev.Message})
	}
}

func (m *Manager) handleClosed(ev protocol.Event) {
	reason := protocol.ClassifyClose(ev.Code)
	log.Printf("Connection closed (code=%d, reason=%s)", ev.Code, reason)

	m.client = nil
	m.mu.Lock()
	m.status = Disconnected
	m.qr = ""
	m.code = ""
	m.user = nil
	m.mu.Unlock()
	m.publish(Event{Type: EventStatus, Status: Disconnected, Reason: reason.String()})

	if reason == protocol.ReasonLoggedOut {
		// Deliberate logout: credentials are dead, stay down.
		if err := m.store.Clear(); err != nil {
			log.Printf("Clearing credentials: %v", err)
		}
		return
	}
	// Everything else, including unmapped codes, is treated as
	// transient and retried.
	m.scheduleReconnect()
}

// startConnection discards any prior handle, loads credentials and dials
// a new connection. Dial failures schedule a retry rather than surface.
func (m *Manager) startConnection(ctx context.Context) {
	m.cancelReconnect()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}

	m.mu.Lock()
	m.status = Connecting
	m.qr = ""
	m.code = ""
	m.user = nil
	m.mu.Unlock()
	m.publish(Event{Type: EventStatus, Status: Connecting})

	blob, err := m.store.Load()
	if err != nil {
		log.Printf("Loading credentials: %v (starting unregistered)", err)
		blob = nil
	}

	client, err := m.dialer.Dial(ctx, blob, m.events)
	if err != nil {
		log.Printf("Connect failed: %v", err)
		m.mu.Lock()
		m.status = Disconnected
		m.mu.Unlock()
		m.publish(Event{Type: EventStatus, Status: Disconnected, Reason: protocol.ReasonUnknown.String()})
		m.scheduleReconnect()
		return
	}
	m.client = client
}

func (m *Manager) requestPairingCode(ctx context.Context, rawPhone string) (string, error) {
	m.mu.RLock()
	status := m.status
	m.mu.RUnlock()
	if m.client == nil || status == Connected || m.client.Registered() {
		return "", ErrInvalidState
	}

	num := phone.Normalize(rawPhone)
	if num == "" || !phone.Validate(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, rawPhone)
	}

	raw, err := m.client.RequestPairingCode(ctx, num)
	if err != nil {
		return "", fmt.Errorf("requesting pairing code: %w", err)
	}

	code := FormatPairingCode(raw)
	m.mu.Lock()
	m.code = code
	m.qr = ""
	m.mu.Unlock()
	log.Printf("Pairing code issued for %s", num)
	m.publish(Event{Type: EventPairingCode, Code: code})
	return code, nil
}

func (m *Manager) disconnect(ctx context.Context) error {
	m.cancelReconnect()
	if m.client == nil {
		return nil
	}

	client := m.client
	m.client = nil
	err := client.Logout(ctx)

	if cerr := m.store.Clear(); cerr != nil {
		log.Printf("Clearing credentials: %v", cerr)
	}

	m.mu.Lock()
	m.status = Disconnected
	m.qr = ""
	m.code = ""
	m.user = nil
	m.mu.Unlock()
	m.publish(Event{Type: EventStatus, Status: Disconnected, Reason: protocol.ReasonLoggedOut.String()})

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (m *Manager) restart(ctx context.Context) error {
	log.Println("Restart requested")
	// startConnection closes the old transport without logout, keeping
	// the credentials valid.
	m.startConnection(ctx)
	return nil
}

func (m *Manager) scheduleReconnect() {
	m.cancelReconnect()
	m.reconnectID++
	id := m.reconnectID
	log.Printf("Reconnect scheduled in %s", m.reconnectDelay)
	m.reconnect = time.AfterFunc(m.reconnectDelay, func() {
		select {
		case m.cmds <- command{kind: cmdReconnect, reconnectID: id}:
		case <-m.done:
		}
	})
}

// cancelReconnect suppresses any pending reconnect, including one whose
// timer already fired and queued its command.
func (m *Manager) cancelReconnect() {
	m.reconnectID++
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) publish(ev Event) {
	if m.sink != nil {
		m.sink.Publish(ev)
	}
}

// FormatPairingCode inserts a dash every four characters, e.g.
// "ABCD1234" becomes "ABCD-1234".
func FormatPairingCode(raw string) string {
	if len(raw) <= 4 {
		return raw
	}
	var groups []string
	for i := 0; i < len(raw); i += 4 {
		end := i + 4
		if end > len(raw) {
			end = len(raw)
		}
		groups = append(groups, raw[i:end])
	}
	return strings.Join(groups, "-")
}
