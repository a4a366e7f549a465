package store

import (
	"context"
	"fmt"
	"time"

	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/store/cache"
)

// Store provides database access to all raw objects in the remote
// (authoritative) store.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Caches
	userCache *cache.Cache // cache for users, keyed by id and uid
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:      driver,
		profile:     profile,
		cacheConfig: cacheConfig,
		userCache:   cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.userCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	user, err := s.driver.CreateUser(ctx, create)
	if err != nil {
		return nil, err
	}
	s.cacheUser(user)
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	user, err := s.driver.UpdateUser(ctx, update)
	if err != nil {
		return nil, err
	}
	s.cacheUser(user)
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

// GetUser returns the first user matching find, or nil when none matches.
// Single-key lookups by id or uid are served from cache when possible.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	if find.ID != nil {
		if v, ok := s.userCache.Get(userCacheKeyByID(*find.ID)); ok {
			return v.(*User), nil
		}
	}
	if find.UID != nil {
		if v, ok := s.userCache.Get(userCacheKeyByUID(*find.UID)); ok {
			return v.(*User), nil
		}
	}

	users, err := s.driver.ListUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	user := users[0]
	s.cacheUser(user)
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, delete *DeleteUser) error {
	// Resolve the uid before deleting so both cache keys can be evicted;
	// a surviving uid entry would keep serving the deleted user until it
	// expires.
	user, err := s.GetUser(ctx, &FindUser{ID: &delete.ID})
	if err != nil {
		return err
	}
	if err := s.driver.DeleteUser(ctx, delete); err != nil {
		return err
	}
	s.userCache.Delete(userCacheKeyByID(delete.ID))
	if user != nil {
		s.userCache.Delete(userCacheKeyByUID(user.UID))
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	return s.driver.CreateSession(ctx, create)
}

func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	return s.driver.ListSessions(ctx, find)
}

// GetSession returns the first session matching find, or nil when none matches.
func (s *Store) GetSession(ctx context.Context, find *FindSession) (*Session, error) {
	sessions, err := s.driver.ListSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

func (s *Store) UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error) {
	return s.driver.UpdateSession(ctx, update)
}

func (s *Store) DeleteSession(ctx context.Context, delete *DeleteSession) error {
	return s.driver.DeleteSession(ctx, delete)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

func (s *Store) DeleteMessage(ctx context.Context, delete *DeleteMessage) error {
	return s.driver.DeleteMessage(ctx, delete)
}

func (s *Store) cacheUser(user *User) {
	s.userCache.Set(userCacheKeyByID(user.ID), user, 0)
	s.userCache.Set(userCacheKeyByUID(user.UID), user, 0)
}

func userCacheKeyByID(id int32) string {
	return fmt.Sprintf("user:id:%d", id)
}

func userCacheKeyByUID(uid string) string {
	return fmt.Sprintf("user:uid:%s", uid)
}
