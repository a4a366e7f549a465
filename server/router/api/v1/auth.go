package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/usecounsel/counsel/server/chat"
	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/server/internal/observability"
)

const (
	authSnapshotKey = "auth-snapshot"
	authTokenKey    = "auth-token"
)

// authContext resolves the optional bearer token into an auth snapshot for
// the request. No token means the anonymous local tier, not a rejection; a
// token that fails verification or reconciliation is rejected so a signed
// in client can never silently fall through to the wrong store.
func (s *APIV1Service) authContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		snapshot := chat.AuthSnapshot{}

		token := bearerToken(c)
		if token != "" {
			asserted, err := s.Provider.CurrentIdentity(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
			}
			if asserted != nil {
				user, err := s.Bridge.Reconcile(c.Request().Context(), asserted)
				if err != nil {
					if errors.IsCode(err, errors.ErrCodeAccountDeactivated) {
						_ = s.Provider.SignOut(c.Request().Context(), token)
						return echo.NewHTTPError(http.StatusForbidden, "account is deactivated")
					}
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve identity")
				}
				snapshot = chat.AuthSnapshot{Authenticated: true, UserKey: user.UID}
			}
		}

		c.Set(authSnapshotKey, snapshot)
		c.Set(authTokenKey, token)

		// The request context travels on the request's context.Context so
		// code below the handlers can log with the same request id.
		reqCtx := observability.NewRequestContext(slog.Default(), string(snapshot.Backend()), snapshot.UserKey)
		c.SetRequest(c.Request().WithContext(
			observability.WithRequestContext(c.Request().Context(), reqCtx)))
		c.Response().Header().Set("X-Request-Id", reqCtx.RequestID)

		err := next(c)
		reqCtx.Info("request completed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.Int("status", c.Response().Status),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		return err
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

func authSnapshot(c echo.Context) chat.AuthSnapshot {
	if snapshot, ok := c.Get(authSnapshotKey).(chat.AuthSnapshot); ok {
		return snapshot
	}
	return chat.AuthSnapshot{}
}

func requestContext(c echo.Context) *observability.RequestContext {
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		return reqCtx
	}
	return observability.NewRequestContext(slog.Default(), string(chat.BackendLocal), "")
}

// errorResponse maps a chat or identity error onto an HTTP status.
func errorResponse(c echo.Context, err error) error {
	code := errors.GetCodeFromError(err, errors.ErrCodePersistenceFailed)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	case errors.ErrCodeAccountDeactivated:
		status = http.StatusForbidden
	case errors.ErrCodeSendInFlight:
		status = http.StatusConflict
	case errors.ErrCodeCompletionUnavailable:
		status = http.StatusServiceUnavailable
	}

	requestContext(c).Error("request failed", err,
		slog.String(observability.LogFieldErrorCode, string(code)))
	return c.JSON(status, map[string]string{
		"code":    string(code),
		"message": err.Error(),
	})
}
