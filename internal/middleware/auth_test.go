package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type authenticatorFunc func(r *http.Request) (string, error)

func (f authenticatorFunc) Authenticate(r *http.Request) (string, error) { return f(r) }

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(auth Authenticator) *gin.Engine {
		r := gin.New()
		r.GET("/me", AuthMiddleware(auth), func(c *gin.Context) {
			c.String(http.StatusOK, c.GetString(ContextUserIDKey))
		})
		return r
	}

	t.Run("ok", func(t *testing.T) {
		r := newRouter(authenticatorFunc(func(*http.Request) (string, error) { return "u1", nil }))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", w.Body.String())
	})

	t.Run("rejected", func(t *testing.T) {
		r := newRouter(authenticatorFunc(func(*http.Request) (string, error) { return "", errors.New("bad") }))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
