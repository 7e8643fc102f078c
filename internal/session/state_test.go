package session

import (
	"encoding/json"
	"testing"
)

func TestStatusJSONRoundTrip(t *testing.T) {
	for _, status := range []Status{Disconnected, Connecting, Connected} {
		data, err := json.Marshal(status)
		if err != nil {
			t.Fatalf("marshal %v: %v", status, err)
		}

		var got Status
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != status {
			t.Errorf("round trip %v -> %s -> %v", status, data, got)
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestSnapshotConnected(t *testing.T) {
	if (Snapshot{Status: Connecting}).Connected() {
		t.Error("connecting snapshot reports connected")
	}
	if !(Snapshot{Status: Connected}).Connected() {
		t.Error("connected snapshot reports not connected")
	}
}
