package chat

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store"
)

// RemoteService adapts the authoritative store to the Service strategy.
// The owner key is a user UID; every operation resolves it first and is
// scoped to that user, so a stale or foreign session id reads as not found
// rather than leaking another tenant's data.
type RemoteService struct {
	store *store.Store
}

func NewRemoteService(st *store.Store) *RemoteService {
	return &RemoteService{store: st}
}

func (s *RemoteService) Backend() Backend {
	return BackendRemote
}

func (s *RemoteService) ListSessions(ctx context.Context, ownerKey string) ([]*Session, error) {
	// An absent owner key lists nothing. This is a tenancy boundary, not a
	// default to a server-wide fetch.
	if ownerKey == "" {
		return []*Session{}, nil
	}
	owner, err := s.resolveOwner(ctx, ownerKey)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.ListSessions(ctx, &store.FindSession{CreatorID: &owner.ID})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to list sessions", err)
	}
	list := make([]*Session, 0, len(sessions))
	for _, session := range sessions {
		list = append(list, fromStoreSession(session))
	}
	return list, nil
}

func (s *RemoteService) CreateSession(ctx context.Context, ownerKey, title string) (*Session, error) {
	if ownerKey == "" {
		return nil, errors.InvalidArgument("owner key is required to create a remote session")
	}
	owner, err := s.resolveOwner(ctx, ownerKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	session, err := s.store.CreateSession(ctx, &store.Session{
		UID:       shortuuid.New(),
		CreatorID: owner.ID,
		Title:     normalizeTitle(title),
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to create session", err)
	}
	return fromStoreSession(session), nil
}

func (s *RemoteService) GetSession(ctx context.Context, ownerKey, sessionID string) (*Session, error) {
	session, err := s.resolveSession(ctx, ownerKey, sessionID)
	if err != nil {
		return nil, err
	}
	return fromStoreSession(session), nil
}

func (s *RemoteService) RenameSession(ctx context.Context, ownerKey, sessionID, title string) (*Session, error) {
	if title == "" {
		return nil, errors.InvalidArgument("title is required")
	}
	session, err := s.resolveSession(ctx, ownerKey, sessionID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateSession(ctx, &store.UpdateSession{ID: session.ID, Title: &title})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to rename session", err)
	}
	return fromStoreSession(updated), nil
}

func (s *RemoteService) DeleteSession(ctx context.Context, ownerKey, sessionID string) error {
	session, err := s.resolveSession(ctx, ownerKey, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, &store.DeleteSession{ID: session.ID}); err != nil {
		return errors.PersistenceFailed("failed to delete session", err)
	}
	return nil
}

func (s *RemoteService) ListMessages(ctx context.Context, ownerKey, sessionID string) ([]*Message, error) {
	session, err := s.resolveSession(ctx, ownerKey, sessionID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, &store.FindMessage{SessionID: &session.ID})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to list messages", err)
	}
	list := make([]*Message, 0, len(messages))
	for _, message := range messages {
		list = append(list, fromStoreMessage(message, sessionID))
	}
	return list, nil
}

func (s *RemoteService) AddMessage(ctx context.Context, ownerKey, sessionID string, role Role, content string) (*Message, error) {
	if content == "" {
		return nil, errors.InvalidArgument("content is required")
	}
	storeRole, err := toStoreRole(role)
	if err != nil {
		return nil, err
	}
	session, err := s.resolveSession(ctx, ownerKey, sessionID)
	if err != nil {
		return nil, err
	}

	message, err := s.store.CreateMessage(ctx, &store.Message{
		UID:       shortuuid.New(),
		SessionID: session.ID,
		Role:      storeRole,
		Content:   content,
		CreatedTs: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to create message", err)
	}
	return fromStoreMessage(message, sessionID), nil
}

// resolveOwner maps an owner key to an active user record.
func (s *RemoteService) resolveOwner(ctx context.Context, ownerKey string) (*store.User, error) {
	user, err := s.store.GetUser(ctx, &store.FindUser{UID: &ownerKey})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to look up user", err)
	}
	if user == nil {
		return nil, errors.Unauthorized("unknown owner key")
	}
	if user.RowStatus == store.Archived {
		return nil, errors.AccountDeactivated(user.Email)
	}
	return user, nil
}

// resolveSession maps a session UID to the owner's row, enforcing tenancy.
func (s *RemoteService) resolveSession(ctx context.Context, ownerKey, sessionID string) (*store.Session, error) {
	if ownerKey == "" {
		return nil, errors.InvalidArgument("owner key is required")
	}
	owner, err := s.resolveOwner(ctx, ownerKey)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, &store.FindSession{UID: &sessionID, CreatorID: &owner.ID})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to look up session", err)
	}
	if session == nil {
		return nil, errors.NotFound("session not found: " + sessionID)
	}
	return session, nil
}

func toStoreRole(role Role) (store.MessageRole, error) {
	switch role {
	case RoleUser:
		return store.MessageRoleUser, nil
	case RoleAssistant:
		return store.MessageRoleAssistant, nil
	default:
		return "", errors.InvalidArgument("unknown message role: " + string(role))
	}
}

func fromStoreRole(role store.MessageRole) Role {
	if role == store.MessageRoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}

func fromStoreSession(s *store.Session) *Session {
	return &Session{
		ID:        s.UID,
		Title:     s.Title,
		CreatedTs: s.CreatedTs,
		UpdatedTs: s.UpdatedTs,
	}
}

func fromStoreMessage(m *store.Message, sessionUID string) *Message {
	return &Message{
		ID:        m.UID,
		SessionID: sessionUID,
		Role:      fromStoreRole(m.Role),
		Content:   m.Content,
		CreatedTs: m.CreatedTs,
	}
}
