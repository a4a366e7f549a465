// Package idp is the boundary to the external identity provider. The
// provider itself (sign-in pages, OAuth redirect flow, session issuance)
// is an external collaborator; this package only turns its tokens into
// identity assertions and relays sign-out and change notifications.
package idp

import "context"

// Identity is a provider-asserted identity: a stable subject key plus
// display attributes.
type Identity struct {
	// Subject is the provider's stable identifier for the identity.
	Subject string
	Email   string
	Name    string
}

// Event is a change notification emitted by the provider.
type Event struct {
	// Identity is nil on sign-out.
	Identity *Identity
}

// Provider exposes the identity provider to the rest of the application.
type Provider interface {
	// CurrentIdentity resolves the session token into an identity
	// assertion. Returns nil when no verified identity is attached.
	CurrentIdentity(ctx context.Context, token string) (*Identity, error)

	// SignOut invalidates the session token.
	SignOut(ctx context.Context, token string) error

	// Announce emits a signed-in event for the given identity so
	// subscribers learn about the transition without polling.
	Announce(identity *Identity)

	// Events is the change-notification stream. The Identity Bridge
	// subscribes to it. Closed when the provider shuts down.
	Events() <-chan Event
}
