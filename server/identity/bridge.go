// Package identity keeps the application's user records in lockstep with
// the external identity provider and handles direct email registration.
package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/usecounsel/counsel/internal/idp"
	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store"
)

// BridgeState is the reconciliation state for one browsing session.
type BridgeState string

const (
	StateUnchecked BridgeState = "UNCHECKED"
	StateChecking  BridgeState = "CHECKING"
	StateVerified  BridgeState = "VERIFIED"
	StateAnonymous BridgeState = "ANONYMOUS"
)

// Bridge reconciles provider-asserted identities with application user
// records. Reconciliation runs at most once per asserted identity key; the
// guard resets only when the key changes, so a provider re-emitting the
// same assertion cannot race a duplicate create.
type Bridge struct {
	mu    sync.Mutex
	store *store.Store

	state      BridgeState
	checkedKey string
	current    *store.User
}

func NewBridge(st *store.Store) *Bridge {
	return &Bridge{store: st, state: StateUnchecked}
}

// State reports the current reconciliation state.
func (b *Bridge) State() BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CurrentUser returns the verified user record, or nil.
func (b *Bridge) CurrentUser() *store.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reconcile processes one provider assertion. A nil assertion is a
// sign-out and resets to Anonymous. On success the matching user record,
// created on first sight, is returned. A deactivated account yields an
// ACCOUNT_DEACTIVATED error and forces Anonymous.
func (b *Bridge) Reconcile(ctx context.Context, assertion *idp.Identity) (*store.User, error) {
	if assertion == nil {
		b.mu.Lock()
		b.state = StateAnonymous
		b.checkedKey = ""
		b.current = nil
		b.mu.Unlock()
		return nil, nil
	}

	key := assertion.Subject
	if key == "" {
		key = assertion.Email
	}
	if key == "" {
		return nil, errors.InvalidArgument("identity assertion carries no subject or email")
	}

	b.mu.Lock()
	if b.checkedKey == key && b.state != StateChecking {
		user := b.current
		state := b.state
		b.mu.Unlock()
		if state == StateAnonymous {
			return nil, errors.AccountDeactivated(assertion.Email)
		}
		return user, nil
	}
	b.state = StateChecking
	b.checkedKey = key
	b.mu.Unlock()

	user, err := b.lookup(ctx, assertion)
	if err != nil {
		b.settle(key, StateUnchecked, nil)
		return nil, err
	}

	if user == nil {
		user, err = b.create(ctx, assertion)
		if err != nil {
			b.settle(key, StateUnchecked, nil)
			return nil, err
		}
		b.settle(key, StateVerified, user)
		return user, nil
	}

	if user.RowStatus == store.Archived {
		b.settle(key, StateAnonymous, nil)
		return nil, errors.AccountDeactivated(user.Email)
	}

	// Application-issued session tokens use the user's own UID as subject;
	// only genuine provider subjects are attached as external ids.
	if user.ExternalID == nil && assertion.Subject != "" && assertion.Subject != user.UID {
		user, err = b.attachExternalID(ctx, user, assertion.Subject)
		if err != nil {
			b.settle(key, StateUnchecked, nil)
			return nil, err
		}
	}

	b.settle(key, StateVerified, user)
	return user, nil
}

// Listen consumes the provider's change-notification stream until ctx is
// done, reconciling each event as it arrives.
func (b *Bridge) Listen(ctx context.Context, provider idp.Provider) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-provider.Events():
			if !ok {
				return
			}
			if _, err := b.Reconcile(ctx, event.Identity); err != nil {
				slog.Warn("identity reconciliation failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

func (b *Bridge) settle(key string, state BridgeState, user *store.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.checkedKey != key {
		// The asserted identity changed while this reconciliation was in
		// flight; the newer run owns the state.
		return
	}
	b.state = state
	b.current = user
	if state == StateUnchecked {
		b.checkedKey = ""
	}
}

// lookup finds the record by external id first, then by email.
func (b *Bridge) lookup(ctx context.Context, assertion *idp.Identity) (*store.User, error) {
	if assertion.Subject != "" {
		user, err := b.store.GetUser(ctx, &store.FindUser{ExternalID: &assertion.Subject})
		if err != nil {
			return nil, errors.PersistenceFailed("failed to look up user by external id", err)
		}
		if user != nil {
			return user, nil
		}
	}
	if assertion.Email == "" {
		return nil, nil
	}
	user, err := b.store.GetUser(ctx, &store.FindUser{Email: &assertion.Email})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to look up user by email", err)
	}
	return user, nil
}

func (b *Bridge) create(ctx context.Context, assertion *idp.Identity) (*store.User, error) {
	if assertion.Email == "" {
		return nil, errors.InvalidArgument("identity assertion carries no email")
	}
	now := time.Now().UnixMilli()
	create := &store.User{
		UID:       shortuuid.New(),
		Email:     assertion.Email,
		Nickname:  assertion.Name,
		RowStatus: store.Normal,
		CreatedTs: now,
		UpdatedTs: now,
	}
	if create.Nickname == "" {
		create.Nickname = assertion.Email
	}
	if assertion.Subject != "" {
		subject := assertion.Subject
		create.ExternalID = &subject
	}

	user, err := b.store.CreateUser(ctx, create)
	if err != nil {
		// A concurrent reconciliation of the same assertion can insert the
		// record between our lookup and this create; the unique email
		// constraint fails the second insert instead of duplicating it.
		// Re-read before reporting a failure.
		if existing, lookupErr := b.lookup(ctx, assertion); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, errors.PersistenceFailed("failed to create user", err)
	}
	slog.Info("created user for new external identity",
		slog.String("user_uid", user.UID))
	return user, nil
}

func (b *Bridge) attachExternalID(ctx context.Context, user *store.User, subject string) (*store.User, error) {
	now := time.Now().UnixMilli()
	updated, err := b.store.UpdateUser(ctx, &store.UpdateUser{
		ID:         user.ID,
		ExternalID: &subject,
		UpdatedTs:  &now,
	})
	if err != nil {
		return nil, errors.PersistenceFailed("failed to attach external id", err)
	}
	return updated, nil
}
