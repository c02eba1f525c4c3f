// Package auth guards the HTTP device routes with a shared bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a presented token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token rejects all.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware rejects requests whose bearer token v does not accept.
func Middleware(v Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok || v.Validate(token) != nil {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="matterctl"`)
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid bearer token")
			}
			return next(c)
		}
	}
}
