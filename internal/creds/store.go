package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// credsVersion is bumped when the envelope schema changes.
	credsVersion = 1

	credsFileName = "creds.json"
)

// Credentials is the persisted envelope around the protocol client's
// credential material. Data is opaque to this service: the protocol
// adapter owns its format and this store only carries it to and from disk.
type Credentials struct {
	Version   int             `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store handles loading and saving session credentials under a session
// directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created (with
// parents) on the first Save if it does not exist.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the full path to the credentials file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, credsFileName)
}

// Load reads the credential blob from disk. A missing file is not an
// error: it returns nil data, meaning the session has never paired.
func (s *Store) Load() (json.RawMessage, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	return c.Data, nil
}

// Save writes the credential blob to disk using an atomic
// temp-file-then-rename pattern. The directory is created if it does not
// already exist.
func (s *Store) Save(blob json.RawMessage) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	c := Credentials{
		Version:   credsVersion,
		Data:      blob,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".creds-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming credentials file: %w", err)
	}
	committed = true

	return nil
}

// Clear removes the persisted credentials. Called after an explicit
// logout, since the network has invalidated them. Missing file is fine.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}
