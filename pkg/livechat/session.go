package livechat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Session is the minimal identity record retained across reloads: the auth
// token plus who it belongs to. No chat, session or notification state is
// persisted; a restart re-derives all of that from the backend.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Agent  bool   `json:"agent,omitempty"`
}

// LoggedIn reports whether the session carries a usable token.
func (s Session) LoggedIn() bool { return s.Token != "" }

// Store persists the Session between runs. It is handed to the components
// that need identity rather than read from ambient process state.
type Store interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// FileStore keeps the Session as a JSON file with owner-only permissions.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the stored session. A missing file is not an error; it yields
// the zero (logged-out) Session.
func (fs *FileStore) Load() (Session, error) {
	raw, err := os.ReadFile(fs.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// Save writes the session atomically via a sibling temp file.
func (fs *FileStore) Save(s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	tmp := fs.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.Rename(tmp, fs.Path); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (fs *FileStore) Clear() error {
	if err := os.Remove(fs.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
