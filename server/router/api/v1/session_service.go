package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/usecounsel/counsel/server/internal/errors"
	"github.com/usecounsel/counsel/server/internal/observability"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *APIV1Service) listSessions(c echo.Context) error {
	snapshot := authSnapshot(c)
	sessions, err := s.serviceFor(snapshot).ListSessions(c.Request().Context(), snapshot.UserKey)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *APIV1Service) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, errors.InvalidArgument("malformed request body"))
	}

	snapshot := authSnapshot(c)
	session, err := s.serviceFor(snapshot).CreateSession(c.Request().Context(), snapshot.UserKey, req.Title)
	if err != nil {
		return errorResponse(c, err)
	}
	requestContext(c).Info("session created",
		slog.String(observability.LogFieldSessionUID, session.ID))
	return c.JSON(http.StatusOK, session)
}

func (s *APIV1Service) getSession(c echo.Context) error {
	snapshot := authSnapshot(c)
	session, err := s.serviceFor(snapshot).GetSession(c.Request().Context(), snapshot.UserKey, c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (s *APIV1Service) renameSession(c echo.Context) error {
	var req renameSessionRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, errors.InvalidArgument("malformed request body"))
	}

	snapshot := authSnapshot(c)
	session, err := s.serviceFor(snapshot).RenameSession(c.Request().Context(), snapshot.UserKey, c.Param("id"), req.Title)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (s *APIV1Service) deleteSession(c echo.Context) error {
	snapshot := authSnapshot(c)
	if err := s.serviceFor(snapshot).DeleteSession(c.Request().Context(), snapshot.UserKey, c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	requestContext(c).Info("session deleted",
		slog.String(observability.LogFieldSessionUID, c.Param("id")))
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listMessages(c echo.Context) error {
	snapshot := authSnapshot(c)
	messages, err := s.serviceFor(snapshot).ListMessages(c.Request().Context(), snapshot.UserKey, c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// sendMessage runs the full send protocol: persist the user turn, obtain
// the assistant reply, persist it. Sends against the same session are
// serialized; an overlapping send answers 409.
func (s *APIV1Service) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, errors.InvalidArgument("malformed request body"))
	}

	snapshot := authSnapshot(c)
	sessionID := c.Param("id")
	reqCtx := requestContext(c)

	result, err := s.Registry.SendMessage(c.Request().Context(), snapshot, sessionID, req.Content)
	if err != nil {
		return errorResponse(c, err)
	}
	reqCtx.Info("message exchange completed",
		slog.String(observability.LogFieldSessionUID, sessionID),
		slog.Int(observability.LogFieldMessageLen, len(req.Content)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	return c.JSON(http.StatusOK, result)
}

// migrate copies the local tier's history into the remote store under the
// verified identity and clears local storage. Requires authentication.
func (s *APIV1Service) migrate(c echo.Context) error {
	snapshot := authSnapshot(c)
	if !snapshot.Authenticated {
		return errorResponse(c, errors.Unauthorized("migration requires a verified identity"))
	}
	if s.Migrator == nil {
		return errorResponse(c, errors.InvalidArgument("migration is not configured"))
	}

	result, err := s.Migrator.RunWithResult(c.Request().Context(), snapshot.UserKey)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
