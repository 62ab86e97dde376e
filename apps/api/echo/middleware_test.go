package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func Test_rateLimitMiddleware(t *testing.T) {
	newApp := func(perMinute int) *echo.Echo {
		e := echo.New()
		e.POST("/login", func(ctx echo.Context) error { return ctx.NoContent(http.StatusOK) }, rateLimitMiddleware(perMinute))
		return e
	}
	post := func(e *echo.Echo, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("limited per client", func(t *testing.T) {
		e := newApp(2)
		assert.Equal(t, http.StatusOK, post(e, "10.0.0.1"))
		assert.Equal(t, http.StatusOK, post(e, "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, post(e, "10.0.0.1"))
		assert.Equal(t, http.StatusOK, post(e, "10.0.0.2"))
	})

	t.Run("disabled", func(t *testing.T) {
		e := newApp(0)
		for i := 0; i < 50; i++ {
			assert.Equal(t, http.StatusOK, post(e, "10.0.0.1"))
		}
	})
}
