package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fairytail9511-bot/eiken-mvp/internal/apperr"
)

// tokenOK reports whether r presents the expected shared token via the password
// query parameter, X-Auth-Token, or an Authorization bearer. An empty expected
// token disables the check.
func tokenOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	candidates := []string{
		r.URL.Query().Get("password"),
		r.Header.Get("X-Auth-Token"),
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		candidates = append(candidates, strings.TrimSpace(auth[7:]))
	}
	for _, c := range candidates {
		if c != "" && subtle.ConstantTimeCompare([]byte(c), []byte(expected)) == 1 {
			return true
		}
	}
	return false
}

// TokenAuth rejects requests under prefix that do not carry the shared token.
func TokenAuth(prefix string, getToken func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, prefix) {
				return next(c)
			}
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}
			if !tokenOK(c.Request(), getToken()) {
				return apperr.Unauthorized()
			}
			return next(c)
		}
	}
}
