package idp

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Claims are the session-token claims the provider issues. Subject is the
// provider's stable identity key.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// TokenConfig configures session-token signing and verification.
type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret: secret,
		Expiry: 7 * 24 * time.Hour,
		Issuer: "counsel",
	}
}

// CreateToken mints a session token for the given identity. Used when the
// application itself acts as the provider (direct registration/login).
func CreateToken(identity *Identity, cfg TokenConfig) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("missing secret")
	}
	if identity == nil || identity.Subject == "" {
		return "", errors.New("missing identity subject")
	}
	if cfg.Expiry <= 0 {
		return "", errors.New("invalid expiry")
	}

	claims := Claims{
		Email: identity.Email,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   identity.Subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.Expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// JWTProvider verifies HS256 session tokens and exposes them as identity
// assertions.
type JWTProvider struct {
	config TokenConfig

	mu      sync.Mutex
	revoked map[string]struct{}
	events  chan Event
}

// NewJWTProvider creates a provider backed by shared-secret session tokens.
func NewJWTProvider(cfg TokenConfig) *JWTProvider {
	return &JWTProvider{
		config:  cfg,
		revoked: make(map[string]struct{}),
		events:  make(chan Event, 8),
	}
}

func (p *JWTProvider) CurrentIdentity(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}

	p.mu.Lock()
	_, isRevoked := p.revoked[token]
	p.mu.Unlock()
	if isRevoked {
		return nil, nil
	}

	claims, err := p.verify(token)
	if err != nil {
		return nil, errors.Wrap(err, "invalid session token")
	}
	return &Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

// SignOut revokes the token and emits a signed-out event.
func (p *JWTProvider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	p.revoked[token] = struct{}{}
	p.mu.Unlock()

	p.emit(Event{Identity: nil})
	return nil
}

func (p *JWTProvider) Events() <-chan Event {
	return p.events
}

// Announce emits a signed-in event for the given identity. Called after a
// token is issued or an OAuth exchange completes.
func (p *JWTProvider) Announce(identity *Identity) {
	p.emit(Event{Identity: identity})
}

func (p *JWTProvider) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		// A slow subscriber only misses intermediate states; the bridge
		// re-reads the current identity on every request anyway.
	}
}

func (p *JWTProvider) verify(tokenString string) (*Claims, error) {
	if p.config.Secret == "" {
		return nil, errors.New("missing secret")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(p.config.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
