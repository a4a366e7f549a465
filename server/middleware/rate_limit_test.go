package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestAllowIsPerClientKey(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"), "burst exhausted")

	// A different client has its own bucket.
	require.True(t, rl.Allow("b"))
}

func TestMiddlewareAnswers429(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	call := func() (int, http.Header) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := handler(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec.Code, rec.Header()
	}

	code, _ := call()
	require.Equal(t, http.StatusOK, code)

	code, header := call()
	require.Equal(t, http.StatusTooManyRequests, code)
	require.NotEmpty(t, header.Get("Retry-After"))
}
