package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/usecounsel/counsel/internal/idp"
	"github.com/usecounsel/counsel/server/chat"
	"github.com/usecounsel/counsel/server/identity"
	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/store"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUserResponse(user *store.User) userResponse {
	return userResponse{ID: user.UID, Email: user.Email, Nickname: user.Nickname}
}

func (s *APIV1Service) issueToken(user *store.User) (string, error) {
	return idp.CreateToken(&idp.Identity{
		Subject: user.UID,
		Email:   user.Email,
		Name:    user.Nickname,
	}, idp.DefaultTokenConfig(s.Profile.Secret))
}

// announceSignIn notifies the provider's event stream and cuts the chat
// registry over to the remote store. When migrate-on-signin is configured
// the cutover first copies local history under the new identity. A failed
// reload never fails the sign-in itself.
func (s *APIV1Service) announceSignIn(ctx context.Context, user *store.User) {
	s.Provider.Announce(&idp.Identity{
		Subject: user.UID,
		Email:   user.Email,
		Name:    user.Nickname,
	})
	auth := chat.AuthSnapshot{Authenticated: true, UserKey: user.UID}
	if err := s.Registry.HandleAuthChange(ctx, auth); err != nil {
		slog.Warn("failed to reload chat state after sign-in",
			slog.String("user_uid", user.UID),
			slog.String("error", err.Error()))
	}
}

func (s *APIV1Service) signUp(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, errors.InvalidArgument("malformed request body"))
	}

	user, err := identity.Register(c.Request().Context(), s.Store, req.Email, req.Nickname, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}
	token, err := s.issueToken(user)
	if err != nil {
		return errorResponse(c, errors.Wrap(err, errors.ErrCodePersistenceFailed, "failed to issue token"))
	}
	s.announceSignIn(c.Request().Context(), user)
	return c.JSON(http.StatusOK, tokenResponse{Token: token, User: toUserResponse(user)})
}

func (s *APIV1Service) signIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, errors.InvalidArgument("malformed request body"))
	}

	user, err := identity.Authenticate(c.Request().Context(), s.Store, req.Email, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}
	token, err := s.issueToken(user)
	if err != nil {
		return errorResponse(c, errors.Wrap(err, errors.ErrCodePersistenceFailed, "failed to issue token"))
	}
	s.announceSignIn(c.Request().Context(), user)
	return c.JSON(http.StatusOK, tokenResponse{Token: token, User: toUserResponse(user)})
}

func (s *APIV1Service) signOut(c echo.Context) error {
	token, _ := c.Get(authTokenKey).(string)
	if token != "" {
		if err := s.Provider.SignOut(c.Request().Context(), token); err != nil {
			return errorResponse(c, errors.Wrap(err, errors.ErrCodePersistenceFailed, "failed to sign out"))
		}
	}
	if err := s.Registry.HandleAuthChange(c.Request().Context(), chat.AuthSnapshot{}); err != nil {
		slog.Warn("failed to reload chat state after sign-out",
			slog.String("error", err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) me(c echo.Context) error {
	snapshot := authSnapshot(c)
	if !snapshot.Authenticated {
		return errorResponse(c, errors.Unauthorized("no verified identity attached"))
	}
	user, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{UID: &snapshot.UserKey})
	if err != nil || user == nil {
		return errorResponse(c, errors.Unauthorized("unknown user"))
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// oauthAuthorize redirects the client to the external provider's consent
// page.
func (s *APIV1Service) oauthAuthorize(c echo.Context) error {
	state := c.QueryParam("state")
	if state == "" {
		state = uuid.NewString()
	}
	return c.Redirect(http.StatusFound, s.exchanger.AuthCodeURL(state))
}

// oauthCallback exchanges the authorization code, reconciles the asserted
// identity into a user record, and answers with an application session
// token.
func (s *APIV1Service) oauthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return errorResponse(c, errors.InvalidArgument("missing authorization code"))
	}

	asserted, err := s.exchanger.Exchange(c.Request().Context(), code)
	if err != nil {
		return errorResponse(c, errors.Wrap(err, errors.ErrCodeUnauthorized, "code exchange failed"))
	}
	user, err := s.Bridge.Reconcile(c.Request().Context(), asserted)
	if err != nil {
		return errorResponse(c, err)
	}
	token, err := s.issueToken(user)
	if err != nil {
		return errorResponse(c, errors.Wrap(err, errors.ErrCodePersistenceFailed, "failed to issue token"))
	}
	s.announceSignIn(c.Request().Context(), user)
	return c.JSON(http.StatusOK, tokenResponse{Token: token, User: toUserResponse(user)})
}
