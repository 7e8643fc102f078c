package sim

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wabridge/backend/internal/protocol"
)

func dialTest(t *testing.T, opts Options, blob json.RawMessage) (protocol.Client, chan protocol.Event) {
	t.Helper()
	events := make(chan protocol.Event, 32)
	cl, err := NewDialer(opts).Dial(context.Background(), blob, events)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { cl.Close() })
	return cl, events
}

func nextEvent(t *testing.T, events chan protocol.Event, kind protocol.EventKind) protocol.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event of kind %d within deadline", kind)
		}
	}
}

func TestUnregisteredEmitsQR(t *testing.T) {
	cl, events := dialTest(t, Options{QRInterval: 10 * time.Millisecond}, nil)

	if cl.Registered() {
		t.Error("fresh client reports registered")
	}

	first := nextEvent(t, events, protocol.EventQR)
	if first.Client != cl {
		t.Error("event not tagged with its handle")
	}
	second := nextEvent(t, events, protocol.EventQR)
	if first.QR == second.QR {
		t.Error("QR payload did not rotate")
	}
}

func TestPairingFlow(t *testing.T) {
	cl, events := dialTest(t, Options{
		QRInterval: 10 * time.Millisecond,
		PairDelay:  10 * time.Millisecond,
	}, nil)

	raw, err := cl.RequestPairingCode(context.Background(), "+525512345678")
	if err != nil {
		t.Fatalf("RequestPairingCode() error: %v", err)
	}
	if len(raw) != 8 {
		t.Errorf("raw code %q, want 8 characters", raw)
	}

	credsEv := nextEvent(t, events, protocol.EventCreds)
	var c simCreds
	if err := json.Unmarshal(credsEv.Creds, &c); err != nil {
		t.Fatalf("credential blob: %v", err)
	}
	if !c.Registered {
		t.Error("credential blob not marked registered")
	}

	open := nextEvent(t, events, protocol.EventOpen)
	if open.User == nil || open.User.ID != "+525512345678" {
		t.Errorf("open user = %+v, want paired phone", open.User)
	}
	if !cl.Registered() {
		t.Error("client not registered after pairing")
	}

	// Registered sessions refuse further pairing codes.
	if _, err := cl.RequestPairingCode(context.Background(), "+525512345678"); err == nil {
		t.Error("RequestPairingCode() on registered client should fail")
	}
}

func TestResumeWithCredentials(t *testing.T) {
	blob, _ := json.Marshal(simCreds{
		Registered: true,
		User:       protocol.UserIdentity{ID: "+525512345678", Name: "Sim User"},
	})
	cl, events := dialTest(t, Options{MessageInterval: 10 * time.Millisecond}, blob)

	if !cl.Registered() {
		t.Fatal("resumed client should report registered")
	}

	open := nextEvent(t, events, protocol.EventOpen)
	if open.User == nil || open.User.ID != "+525512345678" {
		t.Errorf("open user = %+v, want persisted identity", open.User)
	}

	msg := nextEvent(t, events, protocol.EventMessage)
	if msg.Message == nil || msg.Message.From == "" || msg.Message.ID == "" {
		t.Errorf("message event incomplete: %+v", msg.Message)
	}
}

func TestAutoPair(t *testing.T) {
	cl, events := dialTest(t, Options{
		QRInterval: 5 * time.Millisecond,
		PairDelay:  20 * time.Millisecond,
		AutoPair:   true,
	}, nil)

	nextEvent(t, events, protocol.EventQR)
	nextEvent(t, events, protocol.EventOpen)
	if !cl.Registered() {
		t.Error("client not registered after auto-pair")
	}
}

func TestCloseStopsEvents(t *testing.T) {
	cl, events := dialTest(t, Options{QRInterval: 5 * time.Millisecond}, nil)
	nextEvent(t, events, protocol.EventQR)

	if err := cl.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Drain anything in flight, then verify silence.
	time.Sleep(20 * time.Millisecond)
	for len(events) > 0 {
		<-events
	}
	time.Sleep(30 * time.Millisecond)
	if n := len(events); n != 0 {
		t.Errorf("%d events after close, want 0", n)
	}

	if err := cl.Logout(context.Background()); err != nil {
		t.Errorf("Logout() after close: %v", err)
	}
}

func TestBadCredentialBlob(t *testing.T) {
	events := make(chan protocol.Event, 1)
	_, err := NewDialer(Options{}).Dial(context.Background(), json.RawMessage(`{not json`), events)
	if err == nil {
		t.Fatal("Dial() with corrupt blob should fail")
	}
}
