// Package localstore is the best-effort, same-device persistence tier for
// anonymous chat history. It mirrors the remote store's session/message
// shape but is advisory: the in-memory view is authoritative for the
// process lifetime, and snapshot writes that fail degrade to a logged
// no-op instead of an error.
package localstore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sessionsFileName = "local_sessions.json"
	messagesFileName = "local_messages.json"

	snapshotVersion = 1
)

type Session struct {
	ID string `json:"id"`
	// OwnerKey is empty for anonymous local sessions.
	OwnerKey  string `json:"ownerKey,omitempty"`
	Title     string `json:"title"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

type sessionsSnapshot struct {
	Version  int        `json:"version"`
	Sessions []*Session `json:"sessions"`
	SavedAt  int64      `json:"savedAt"`
}

type messagesSnapshot struct {
	Version  int        `json:"version"`
	Messages []*Message `json:"messages"`
	SavedAt  int64      `json:"savedAt"`
}

// Store keeps sessions newest-first and messages in append order,
// matching read-back expectations without re-sorting on every write.
type Store struct {
	mu sync.RWMutex

	dataDir  string
	sessions []*Session
	messages []*Message

	persistMu sync.Mutex
}

// New creates a local store rooted at dataDir and loads any previous
// snapshots. Corrupt or unreadable snapshots degrade to an empty store.
func New(dataDir string) *Store {
	s := &Store{dataDir: dataDir}
	s.load()
	return s
}

func (s *Store) load() {
	var sessSnap sessionsSnapshot
	if ok := readSnapshot(filepath.Join(s.dataDir, sessionsFileName), &sessSnap); ok && sessSnap.Version == snapshotVersion {
		s.sessions = sessSnap.Sessions
	}
	var msgSnap messagesSnapshot
	if ok := readSnapshot(filepath.Join(s.dataDir, messagesFileName), &msgSnap); ok && msgSnap.Version == snapshotVersion {
		s.messages = msgSnap.Messages
	}
}

func readSnapshot(path string, out any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("localstore: snapshot read failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return false
	}
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("localstore: snapshot corrupt, starting empty", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return true
}

// ListSessions returns all local sessions, newest-first.
func (s *Store) ListSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Session, len(s.sessions))
	for i, sess := range s.sessions {
		copied := *sess
		result[i] = &copied
	}
	return result
}

// CreateSession prepends a new session with generated id and timestamps.
func (s *Store) CreateSession(title, ownerKey string) *Session {
	now := time.Now().UnixMilli()
	sess := &Session{
		ID:        uuid.NewString(),
		OwnerKey:  ownerKey,
		Title:     title,
		CreatedTs: now,
		UpdatedTs: now,
	}

	s.mu.Lock()
	s.sessions = append([]*Session{sess}, s.sessions...)
	s.mu.Unlock()

	s.persistSessions()
	copied := *sess
	return &copied
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			copied := *sess
			return &copied, true
		}
	}
	return nil, false
}

// UpdateSessionTitle renames a session and bumps its updated timestamp.
func (s *Store) UpdateSessionTitle(id, title string) (*Session, bool) {
	s.mu.Lock()
	var updated *Session
	for _, sess := range s.sessions {
		if sess.ID == id {
			sess.Title = title
			sess.UpdatedTs = time.Now().UnixMilli()
			copied := *sess
			updated = &copied
			break
		}
	}
	s.mu.Unlock()

	if updated == nil {
		return nil, false
	}
	s.persistSessions()
	return updated, true
}

// DeleteSession removes the session and cascades to its messages.
// Returns false when the session does not exist.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	found := false
	filtered := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.ID == id {
			found = true
			continue
		}
		filtered = append(filtered, sess)
	}
	s.sessions = filtered

	if found {
		remaining := s.messages[:0]
		for _, m := range s.messages {
			if m.SessionID != id {
				remaining = append(remaining, m)
			}
		}
		s.messages = remaining
	}
	s.mu.Unlock()

	if !found {
		return false
	}
	s.persistSessions()
	s.persistMessages()
	return true
}

// ListMessages returns the session's messages ascending by creation time,
// insertion order breaking ties.
func (s *Store) ListMessages(sessionID string) []*Message {
	s.mu.RLock()
	result := make([]*Message, 0)
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			copied := *m
			result = append(result, &copied)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedTs < result[j].CreatedTs
	})
	return result
}

// AddMessage appends a message and bumps the owning session's UpdatedTs
// to the message's creation time.
func (s *Store) AddMessage(sessionID, role, content string) *Message {
	now := time.Now().UnixMilli()
	msg := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedTs: now,
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			sess.UpdatedTs = now
			break
		}
	}
	s.mu.Unlock()

	s.persistMessages()
	s.persistSessions()
	copied := *msg
	return &copied
}

// ClearAll wipes all local sessions and messages. Used by the migration
// routine after a successful copy into the remote store.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.sessions = nil
	s.messages = nil
	s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.dataDir, sessionsFileName)); err != nil && !os.IsNotExist(err) {
		slog.Warn("localstore: failed to remove sessions snapshot", slog.String("error", err.Error()))
	}
	if err := os.Remove(filepath.Join(s.dataDir, messagesFileName)); err != nil && !os.IsNotExist(err) {
		slog.Warn("localstore: failed to remove messages snapshot", slog.String("error", err.Error()))
	}
}

func (s *Store) persistSessions() {
	s.mu.RLock()
	snap := sessionsSnapshot{Version: snapshotVersion, Sessions: s.sessions, SavedAt: time.Now().UnixMilli()}
	data, err := json.MarshalIndent(snap, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		slog.Warn("localstore: marshal sessions failed", slog.String("error", err.Error()))
		return
	}
	s.writeSnapshot(sessionsFileName, data)
}

func (s *Store) persistMessages() {
	s.mu.RLock()
	snap := messagesSnapshot{Version: snapshotVersion, Messages: s.messages, SavedAt: time.Now().UnixMilli()}
	data, err := json.MarshalIndent(snap, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		slog.Warn("localstore: marshal messages failed", slog.String("error", err.Error()))
		return
	}
	s.writeSnapshot(messagesFileName, data)
}

// writeSnapshot is best-effort: failures are logged and swallowed. The
// local tier is advisory, not authoritative.
func (s *Store) writeSnapshot(name string, data []byte) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0o700); err != nil {
		slog.Warn("localstore: mkdir failed", slog.String("dir", s.dataDir), slog.String("error", err.Error()))
		return
	}

	path := filepath.Join(s.dataDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		slog.Warn("localstore: snapshot write failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		slog.Warn("localstore: snapshot rename failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}
