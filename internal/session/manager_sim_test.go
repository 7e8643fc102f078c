package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wabridge/backend/internal/creds"
	"github.com/wabridge/backend/internal/sim"
)

// TestPairingEndToEnd runs the manager against the simulated protocol
// client: fresh start, QR issued, pairing code requested and entered,
// credentials persisted, session open.
func TestPairingEndToEnd(t *testing.T) {
	store := creds.NewStore(t.TempDir())
	dialer := sim.NewDialer(sim.Options{
		QRInterval:      10 * time.Millisecond,
		PairDelay:       10 * time.Millisecond,
		MessageInterval: 10 * time.Millisecond,
	})
	sink := &captureSink{}
	m := NewManager(dialer, store, sink, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	waitFor(t, func() bool { return m.Snapshot().QR != "" })

	code, err := m.RequestPairingCode(context.Background(), "5215512345678")
	if err != nil {
		t.Fatalf("RequestPairingCode() error: %v", err)
	}
	if len(code) != 9 || code[4] != '-' {
		t.Errorf("code = %q, want XXXX-XXXX shape", code)
	}

	waitFor(t, func() bool { return m.Snapshot().Status == Connected })

	snap := m.Snapshot()
	if snap.User == nil || snap.User.ID != "+525512345678" {
		t.Errorf("user = %+v, want the paired number", snap.User)
	}
	if snap.QR != "" || snap.PairingCode != "" {
		t.Errorf("auth artifacts not cleared: qr=%q code=%q", snap.QR, snap.PairingCode)
	}

	// The sim emitted a credential update during pairing; it must have
	// been persisted.
	blob, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if blob == nil || !strings.Contains(string(blob), "+525512345678") {
		t.Errorf("persisted credentials = %s, want paired identity", blob)
	}

	// Inbound messages flow through to the sink.
	waitFor(t, func() bool {
		for _, ev := range sink.all() {
			if ev.Type == EventMessage {
				return true
			}
		}
		return false
	})
}

// TestResumeEndToEnd verifies a restart after pairing resumes the session
// from persisted credentials without re-authentication.
func TestResumeEndToEnd(t *testing.T) {
	store := creds.NewStore(t.TempDir())
	dialer := sim.NewDialer(sim.Options{
		QRInterval: 10 * time.Millisecond,
		PairDelay:  10 * time.Millisecond,
		AutoPair:   true,
	})
	m := NewManager(dialer, store, &captureSink{}, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	waitFor(t, func() bool { return m.Snapshot().Status == Connected })

	if err := m.Restart(context.Background()); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	waitFor(t, func() bool { return m.Snapshot().Status == Connecting })
	waitFor(t, func() bool { return m.Snapshot().Status == Connected })

	if snap := m.Snapshot(); snap.QR != "" {
		t.Errorf("resumed session emitted QR %q, want none", snap.QR)
	}
}
