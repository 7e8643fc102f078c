// Package sim is a scripted protocol client used in place of a real
// driver: it rotates QR payloads, issues pairing codes, completes a fake
// pairing after a delay and, once connected, produces periodic inbound
// messages. Useful for demos and for exercising the full session
// lifecycle without network access.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wabridge/backend/internal/protocol"
)

// Options tunes the simulated client.
type Options struct {
	// QRInterval is how often a fresh QR payload is emitted while
	// unregistered.
	QRInterval time.Duration
	// PairDelay is how long after a pairing code is requested (or, with
	// AutoPair, after dialing) the fake pairing completes.
	PairDelay time.Duration
	// MessageInterval is how often an inbound message arrives while
	// connected.
	MessageInterval time.Duration
	// AutoPair completes pairing from the QR path without a pairing
	// code request, as if someone scanned it.
	AutoPair bool
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.QRInterval <= 0 {
		out.QRInterval = 20 * time.Second
	}
	if out.PairDelay <= 0 {
		out.PairDelay = 10 * time.Second
	}
	if out.MessageInterval <= 0 {
		out.MessageInterval = 15 * time.Second
	}
	return out
}

// simCreds is the credential blob format the simulator persists. Opaque to
// everyone else.
type simCreds struct {
	Registered bool                  `json:"registered"`
	User       protocol.UserIdentity `json:"user"`
}

// Dialer produces simulated connections.
type Dialer struct {
	opts Options
}

func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts.withDefaults()}
}

func (d *Dialer) Dial(ctx context.Context, blob json.RawMessage, events chan<- protocol.Event) (protocol.Client, error) {
	var c simCreds
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &c); err != nil {
			return nil, fmt.Errorf("parsing sim credentials: %w", err)
		}
	}

	cl := &client{
		opts:       d.opts,
		events:     events,
		registered: c.Registered,
		user:       c.User,
		pairCh:     make(chan string, 1),
		closed:     make(chan struct{}),
	}
	go cl.run()
	return cl, nil
}

type client struct {
	opts   Options
	events chan<- protocol.Event

	mu         sync.Mutex
	registered bool
	user       protocol.UserIdentity

	pairCh    chan string // receives the phone number when pairing starts
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *client) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	c.mu.Lock()
	registered := c.registered
	c.mu.Unlock()
	if registered {
		return "", errors.New("session already registered")
	}

	select {
	case c.pairCh <- phone:
	default:
		// A pairing attempt is already in flight; reuse it.
	}

	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return raw, nil
}

func (c *client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.registered = false
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *client) run() {
	c.mu.Lock()
	registered := c.registered
	c.mu.Unlock()

	if registered {
		// Resumed session: short fake handshake, then open.
		if !c.sleep(500 * time.Millisecond) {
			return
		}
		c.open()
		c.messageLoop()
		return
	}

	if !c.authenticate() {
		return
	}
	c.messageLoop()
}

// authenticate rotates QR payloads until pairing completes. Returns false
// if the client was closed first.
func (c *client) authenticate() bool {
	qr := time.NewTicker(c.opts.QRInterval)
	defer qr.Stop()

	c.emit(protocol.Event{Kind: protocol.EventQR, QR: c.qrPayload()})

	var autoPair <-chan time.Time
	if c.opts.AutoPair {
		t := time.NewTimer(c.opts.PairDelay)
		defer t.Stop()
		autoPair = t.C
	}

	var phone string
	for {
		select {
		case <-c.closed:
			return false
		case <-qr.C:
			c.emit(protocol.Event{Kind: protocol.EventQR, QR: c.qrPayload()})
		case phone = <-c.pairCh:
			// Pairing code issued; the "user" enters it after a delay.
			if !c.sleep(c.opts.PairDelay) {
				return false
			}
			c.completePairing(phone)
			return true
		case <-autoPair:
			c.completePairing("")
			return true
		}
	}
}

func (c *client) completePairing(phone string) {
	id := phone
	if id == "" {
		id = "+5255" + fmt.Sprintf("%08d", rand.Intn(100000000))
	}
	user := protocol.UserIdentity{ID: id, Name: "Sim User"}

	c.mu.Lock()
	c.registered = true
	c.user = user
	c.mu.Unlock()

	blob, _ := json.Marshal(simCreds{Registered: true, User: user})
	c.emit(protocol.Event{Kind: protocol.EventCreds, Creds: blob})
	c.open()
}

func (c *client) open() {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()
	c.emit(protocol.Event{Kind: protocol.EventOpen, User: &u})
}

var simSenders = []string{"+5215512345678", "+5491112345678", "+447911123456"}

var simTexts = []string{
	"hola!",
	"did you see this?",
	"llegando en 10",
	"ok",
	"call me when you can",
}

func (c *client) messageLoop() {
	ticker := time.NewTicker(c.opts.MessageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.emit(protocol.Event{Kind: protocol.EventMessage, Message: &protocol.Message{
				ID:        uuid.NewString(),
				From:      simSenders[rand.Intn(len(simSenders))],
				Text:      simTexts[rand.Intn(len(simTexts))],
				Timestamp: time.Now(),
			}})
		}
	}
}

func (c *client) qrPayload() string {
	return "sim-qr:" + uuid.NewString()
}

// emit sends an event tagged with this handle, giving up if the client is
// closed so a discarded handle never blocks.
func (c *client) emit(ev protocol.Event) {
	ev.Client = c
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// sleep waits d unless the client is closed first.
func (c *client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.closed:
		return false
	}
}
