package chat

import (
	"context"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store/localstore"
)

// LocalService adapts the on-device snapshot store to the Service strategy.
// It is the anonymous tier: best-effort persistence, no identity scoping,
// and the only failures it can surface are bad references, never I/O.
type LocalService struct {
	store *localstore.Store
}

func NewLocalService(store *localstore.Store) *LocalService {
	return &LocalService{store: store}
}

func (s *LocalService) Backend() Backend {
	return BackendLocal
}

func (s *LocalService) ListSessions(ctx context.Context, ownerKey string) ([]*Session, error) {
	sessions := s.store.ListSessions()
	list := make([]*Session, 0, len(sessions))
	for _, session := range sessions {
		list = append(list, fromLocalSession(session))
	}
	return list, nil
}

func (s *LocalService) CreateSession(ctx context.Context, ownerKey, title string) (*Session, error) {
	session := s.store.CreateSession(normalizeTitle(title), ownerKey)
	return fromLocalSession(session), nil
}

func (s *LocalService) GetSession(ctx context.Context, ownerKey, sessionID string) (*Session, error) {
	session, ok := s.store.GetSession(sessionID)
	if !ok {
		return nil, errors.NotFound("session not found: " + sessionID)
	}
	return fromLocalSession(session), nil
}

func (s *LocalService) RenameSession(ctx context.Context, ownerKey, sessionID, title string) (*Session, error) {
	if title == "" {
		return nil, errors.InvalidArgument("title is required")
	}
	session, ok := s.store.UpdateSessionTitle(sessionID, title)
	if !ok {
		return nil, errors.NotFound("session not found: " + sessionID)
	}
	return fromLocalSession(session), nil
}

func (s *LocalService) DeleteSession(ctx context.Context, ownerKey, sessionID string) error {
	if !s.store.DeleteSession(sessionID) {
		return errors.NotFound("session not found: " + sessionID)
	}
	return nil
}

func (s *LocalService) ListMessages(ctx context.Context, ownerKey, sessionID string) ([]*Message, error) {
	messages := s.store.ListMessages(sessionID)
	list := make([]*Message, 0, len(messages))
	for _, message := range messages {
		list = append(list, fromLocalMessage(message))
	}
	return list, nil
}

func (s *LocalService) AddMessage(ctx context.Context, ownerKey, sessionID string, role Role, content string) (*Message, error) {
	if content == "" {
		return nil, errors.InvalidArgument("content is required")
	}
	if role != RoleUser && role != RoleAssistant {
		return nil, errors.InvalidArgument("unknown message role: " + string(role))
	}
	if _, ok := s.store.GetSession(sessionID); !ok {
		return nil, errors.NotFound("session not found: " + sessionID)
	}
	message := s.store.AddMessage(sessionID, string(role), content)
	return fromLocalMessage(message), nil
}

func fromLocalSession(s *localstore.Session) *Session {
	return &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedTs: s.CreatedTs,
		UpdatedTs: s.UpdatedTs,
	}
}

func fromLocalMessage(m *localstore.Message) *Message {
	return &Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      Role(m.Role),
		Content:   m.Content,
		CreatedTs: m.CreatedTs,
	}
}
