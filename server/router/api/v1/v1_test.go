package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/usecounsel/counsel/internal/idp"
	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/server/ai"
	"github.com/usecounsel/counsel/server/chat"
	"github.com/usecounsel/counsel/server/identity"
	"github.com/usecounsel/counsel/store/localstore"
	teststore "github.com/usecounsel/counsel/store/test"
)

type stubCompleter struct{ reply string }

func (s *stubCompleter) Complete(ctx context.Context, messages []ai.Message) string {
	return s.reply
}

type testAPI struct {
	echo *echo.Echo
}

func newTestAPI(ctx context.Context, t *testing.T) *testAPI {
	return newTestAPIMigrating(ctx, t, false)
}

func newTestAPIMigrating(ctx context.Context, t *testing.T, migrateOnSignIn bool) *testAPI {
	t.Helper()

	st := teststore.NewTestingStore(ctx, t)
	p := &profile.Profile{Mode: "dev", Data: t.TempDir(), Secret: "test-secret"}

	local := localstore.New(p.Data)
	localSvc := chat.NewLocalService(local)
	remoteSvc := chat.NewRemoteService(st)
	migrator := chat.NewMigrator(local, remoteSvc)
	registry := chat.NewRegistry(localSvc, remoteSvc, &stubCompleter{reply: "let's talk about your career"},
		chat.WithMigrator(migrator, migrateOnSignIn))

	provider := idp.NewJWTProvider(idp.DefaultTokenConfig(p.Secret))
	bridge := identity.NewBridge(st)

	service := NewAPIV1Service(p, st, provider, bridge, registry, migrator, localSvc, remoteSvc, nil)
	e := echo.New()
	service.Register(e)

	return &testAPI{echo: e}
}

func (a *testAPI) request(t *testing.T, method, path, token, body string, out any) int {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func (a *testAPI) signUp(t *testing.T, email string) string {
	t.Helper()
	var resp tokenResponse
	code := a.request(t, http.MethodPost, "/api/v1/auth/signup", "",
		`{"email":"`+email+`","password":"s3cret-pass"}`, &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAnonymousSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(ctx, t)

	var created chat.Session
	code := api.request(t, http.MethodPost, "/api/v1/sessions", "", `{"title":"Plan A"}`, &created)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Plan A", created.Title)

	var sessions []chat.Session
	code = api.request(t, http.MethodGet, "/api/v1/sessions", "", "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions, 1)

	code = api.request(t, http.MethodDelete, "/api/v1/sessions/"+created.ID, "", "", nil)
	require.Equal(t, http.StatusNoContent, code)

	code = api.request(t, http.MethodGet, "/api/v1/sessions/"+created.ID, "", "", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSendMessageAnswersWithAssistantTurn(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(ctx, t)

	var created chat.Session
	code := api.request(t, http.MethodPost, "/api/v1/sessions", "", `{}`, &created)
	require.Equal(t, http.StatusOK, code)

	var result chat.SendResult
	code = api.request(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/messages", "",
		`{"content":"how do I switch careers?"}`, &result)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, chat.RoleUser, result.UserMessage.Role)
	require.Equal(t, "how do I switch careers?", result.UserMessage.Content)
	require.Equal(t, chat.RoleAssistant, result.AssistantMessage.Role)
	require.Equal(t, "let's talk about your career", result.AssistantMessage.Content)

	var messages []chat.Message
	code = api.request(t, http.MethodGet, "/api/v1/sessions/"+created.ID+"/messages", "", "", &messages)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, messages, 2)
}

func TestAuthenticatedTierIsSeparate(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(ctx, t)

	code := api.request(t, http.MethodPost, "/api/v1/sessions", "", `{"title":"local only"}`, nil)
	require.Equal(t, http.StatusOK, code)

	token := api.signUp(t, "amy@usecounsel.dev")

	// The signed-in view is the remote store, which knows nothing about
	// the anonymous history.
	var sessions []chat.Session
	code = api.request(t, http.MethodGet, "/api/v1/sessions", token, "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, sessions)

	code = api.request(t, http.MethodPost, "/api/v1/sessions", token, `{"title":"remote"}`, nil)
	require.Equal(t, http.StatusOK, code)

	code = api.request(t, http.MethodGet, "/api/v1/sessions", token, "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions, 1)

	// Anonymous view still shows only the local session.
	code = api.request(t, http.MethodGet, "/api/v1/sessions", "", "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions, 1)
	require.Equal(t, "local only", sessions[0].Title)
}

func TestMigrateMovesLocalHistory(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(ctx, t)

	var created chat.Session
	code := api.request(t, http.MethodPost, "/api/v1/sessions", "", `{"title":"Plan A"}`, &created)
	require.Equal(t, http.StatusOK, code)
	code = api.request(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/messages", "",
		`{"content":"hello"}`, nil)
	require.Equal(t, http.StatusOK, code)

	code = api.request(t, http.MethodPost, "/api/v1/migrate", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	token := api.signUp(t, "amy@usecounsel.dev")

	var result chat.MigrationResult
	code = api.request(t, http.MethodPost, "/api/v1/migrate", token, "", &result)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, result.Sessions)
	require.Equal(t, 2, result.Messages)

	var sessions []chat.Session
	code = api.request(t, http.MethodGet, "/api/v1/sessions", token, "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions, 1)
	require.Equal(t, "Plan A", sessions[0].Title)

	var messages []chat.Message
	code = api.request(t, http.MethodGet, "/api/v1/sessions/"+sessions[0].ID+"/messages", token, "", &messages)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, messages, 2)
	require.Equal(t, chat.RoleUser, messages[0].Role)
	require.Equal(t, chat.RoleAssistant, messages[1].Role)

	code = api.request(t, http.MethodGet, "/api/v1/sessions", "", "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, sessions)
}

func TestSignUpMigratesLocalHistoryWhenConfigured(t *testing.T) {
	ctx := context.Background()
	api := newTestAPIMigrating(ctx, t, true)

	var created chat.Session
	code := api.request(t, http.MethodPost, "/api/v1/sessions", "", `{"title":"Plan A"}`, &created)
	require.Equal(t, http.StatusOK, code)
	code = api.request(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/messages", "",
		`{"content":"hello"}`, nil)
	require.Equal(t, http.StatusOK, code)

	// Signing up is the anonymous-to-authenticated transition; no explicit
	// migrate call is needed.
	token := api.signUp(t, "amy@usecounsel.dev")

	var sessions []chat.Session
	code = api.request(t, http.MethodGet, "/api/v1/sessions", token, "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions, 1)
	require.Equal(t, "Plan A", sessions[0].Title)

	var messages []chat.Message
	code = api.request(t, http.MethodGet, "/api/v1/sessions/"+sessions[0].ID+"/messages", token, "", &messages)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, messages, 2)

	code = api.request(t, http.MethodGet, "/api/v1/sessions", "", "", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, sessions)
}

func TestInvalidTokenRejected(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(ctx, t)

	code := api.request(t, http.MethodGet, "/api/v1/sessions", "not-a-token", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestSignInAndMe(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(ctx, t)

	api.signUp(t, "amy@usecounsel.dev")

	var resp tokenResponse
	code := api.request(t, http.MethodPost, "/api/v1/auth/signin", "",
		`{"email":"amy@usecounsel.dev","password":"s3cret-pass"}`, &resp)
	require.Equal(t, http.StatusOK, code)

	var me userResponse
	code = api.request(t, http.MethodGet, "/api/v1/auth/me", resp.Token, "", &me)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "amy@usecounsel.dev", me.Email)

	code = api.request(t, http.MethodGet, "/api/v1/auth/me", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code = api.request(t, http.MethodPost, "/api/v1/auth/signout", resp.Token, "", nil)
	require.Equal(t, http.StatusNoContent, code)

	// The revoked token no longer asserts an identity.
	code = api.request(t, http.MethodGet, "/api/v1/auth/me", resp.Token, "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}
