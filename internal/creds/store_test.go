package creds

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	blob, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on empty dir: %v", err)
	}
	if blob != nil {
		t.Errorf("Load() on empty dir = %s, want nil", blob)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "session"))

	blob := json.RawMessage(`{"noiseKey":"abc","registered":true}`)
	if err := s.Save(blob); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("Load() = %s, want %s", got, blob)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Save(json.RawMessage(`{"gen":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(json.RawMessage(`{"gen":2}`)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"gen":2}` {
		t.Errorf("Load() after overwrite = %s, want {\"gen\":2}", got)
	}

	// No temp files should be left behind.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("session dir has %d entries, want 1 (creds.json only)", len(entries))
	}
}

func TestClear(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() with no file: %v", err)
	}

	if err := s.Save(json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	blob, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if blob != nil {
		t.Errorf("Load() after Clear() = %s, want nil", blob)
	}
}
