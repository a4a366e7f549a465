// Package v1 exposes the chat subsystem over HTTP. Unauthenticated
// requests operate on the on-device local tier; requests carrying a valid
// session token operate on the remote store scoped to the verified user.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/usecounsel/counsel/internal/idp"
	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/server/chat"
	"github.com/usecounsel/counsel/server/identity"
	"github.com/usecounsel/counsel/server/middleware"
	"github.com/usecounsel/counsel/store"
)

type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Provider idp.Provider
	Bridge   *identity.Bridge
	Registry *chat.Registry
	Migrator *chat.Migrator

	local  chat.Service
	remote chat.Service

	apiLimiter  *middleware.RateLimiter
	sendLimiter *middleware.RateLimiter
	exchanger   *idp.OAuthExchanger
}

func NewAPIV1Service(
	p *profile.Profile,
	st *store.Store,
	provider idp.Provider,
	bridge *identity.Bridge,
	registry *chat.Registry,
	migrator *chat.Migrator,
	local, remote chat.Service,
	exchanger *idp.OAuthExchanger,
) *APIV1Service {
	return &APIV1Service{
		Profile:  p,
		Store:    st,
		Provider: provider,
		Bridge:   bridge,
		Registry: registry,
		Migrator: migrator,

		local:  local,
		remote: remote,

		// Sends are the expensive path: one completion call each.
		apiLimiter:  middleware.NewRateLimiter(10, 20),
		sendLimiter: middleware.NewRateLimiter(1, 3),
		exchanger:   exchanger,
	}
}

// Register mounts all v1 routes on e.
func (s *APIV1Service) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.Use(s.authContext)
	api.Use(s.apiLimiter.Middleware())

	api.POST("/auth/signup", s.signUp)
	api.POST("/auth/signin", s.signIn)
	api.POST("/auth/signout", s.signOut)
	api.GET("/auth/me", s.me)
	if s.exchanger != nil {
		api.GET("/auth/oauth/authorize", s.oauthAuthorize)
		api.GET("/auth/oauth/callback", s.oauthCallback)
	}

	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.PATCH("/sessions/:id", s.renameSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.GET("/sessions/:id/messages", s.listMessages)
	api.POST("/sessions/:id/messages", s.sendMessage, s.sendLimiter.Middleware())

	api.POST("/migrate", s.migrate)
}

// serviceFor picks the store strategy the snapshot selects.
func (s *APIV1Service) serviceFor(auth chat.AuthSnapshot) chat.Service {
	if auth.Backend() == chat.BackendRemote {
		return s.remote
	}
	return s.local
}
