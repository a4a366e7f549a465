// Package chat implements the dual-mode conversation layer: a backing-store
// strategy (local or remote), the in-memory session registry that routes
// every read and write to exactly one of them, and the one-shot migration
// of local history into the remote store.
package chat

import (
	"context"
)

// Backend identifies which store strategy is active for a browsing session.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Role is a persisted message role. A third role, system, exists only in
// completion request payloads and never reaches a Service.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New Career Chat"

// Session is one conversation thread as seen by the registry and the API.
// IDs are opaque strings regardless of which backend produced them.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

// Message is one turn within a session.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

// Service is the backing-store strategy. Exactly one implementation is
// authoritative for a browsing session at any instant; the registry picks
// which one from the current auth snapshot and never blends the two.
//
// ownerKey is the identity key scoping remote data to a user. The local
// implementation ignores it, since on-device storage is inherently
// single-profile.
type Service interface {
	Backend() Backend

	ListSessions(ctx context.Context, ownerKey string) ([]*Session, error)
	CreateSession(ctx context.Context, ownerKey, title string) (*Session, error)
	GetSession(ctx context.Context, ownerKey, sessionID string) (*Session, error)
	RenameSession(ctx context.Context, ownerKey, sessionID, title string) (*Session, error)
	DeleteSession(ctx context.Context, ownerKey, sessionID string) error

	ListMessages(ctx context.Context, ownerKey, sessionID string) ([]*Message, error)
	AddMessage(ctx context.Context, ownerKey, sessionID string, role Role, content string) (*Message, error)
}

func normalizeTitle(title string) string {
	if title == "" {
		return DefaultSessionTitle
	}
	return title
}
