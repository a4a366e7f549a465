package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	DeleteUser(ctx context.Context, delete *DeleteUser) error

	// Session model related methods.
	CreateSession(ctx context.Context, create *Session) (*Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*Session, error)
	UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error)
	DeleteSession(ctx context.Context, delete *DeleteSession) error

	// Message model related methods.
	// CreateMessage inserts the message and bumps the owning session's
	// updated_ts. The insert is authoritative: a failed bump leaves the
	// message committed with a stale session timestamp.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	DeleteMessage(ctx context.Context, delete *DeleteMessage) error
}
