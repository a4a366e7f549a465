package identity

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store"
)

// Register creates a user record for direct email registration. Accounts
// created this way carry a password hash and no external id until the same
// email is later seen through the external provider.
func Register(ctx context.Context, st *store.Store, email, nickname, password string) (*store.User, error) {
	if email == "" {
		return nil, errors.InvalidArgument("email is required")
	}
	if len(password) < 8 {
		return nil, errors.InvalidArgument("password must be at least 8 characters")
	}

	existing, err := st.GetUser(ctx, &store.FindUser{Email: &email})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to look up user", err)
	}
	if existing != nil {
		return nil, errors.InvalidArgument("email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistenceFailed, "failed to hash password")
	}

	if nickname == "" {
		nickname = email
	}
	now := time.Now().UnixMilli()
	user, err := st.CreateUser(ctx, &store.User{
		UID:          shortuuid.New(),
		Email:        email,
		Nickname:     nickname,
		PasswordHash: string(hash),
		RowStatus:    store.Normal,
		CreatedTs:    now,
		UpdatedTs:    now,
	})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to create user", err)
	}
	return user, nil
}

// Authenticate verifies an email/password pair against the stored hash.
func Authenticate(ctx context.Context, st *store.Store, email, password string) (*store.User, error) {
	user, err := st.GetUser(ctx, &store.FindUser{Email: &email})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to look up user", err)
	}
	if user == nil {
		return nil, errors.Unauthorized("invalid email or password")
	}
	if user.RowStatus == store.Archived {
		return nil, errors.AccountDeactivated(user.Email)
	}
	if user.PasswordHash == "" {
		return nil, errors.Unauthorized("account signs in through its identity provider")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized("invalid email or password")
	}
	return user, nil
}
