package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/conselhomais/portal/internal/domain"
	"github.com/conselhomais/portal/internal/present/rest/presenter"
	"github.com/conselhomais/portal/internal/service"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	auth *service.Auth
}

func NewAuthMiddleware(auth *service.Auth) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireSession gates the admin surface behind a valid bearer token.
// Public reads never pass through here, so stale admin state is not
// reachable without a session.
func (s *AuthMiddleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.RequireSession")
		defer span.End()

		authHeader := c.Request().Header.Get("authorization")
		split := strings.Split(authHeader, " ")
		if len(split) != 2 || split[0] != "Bearer" {
			return presenter.Unauthorized(c, "missing bearer token")
		}

		token := split[1]
		if !s.auth.ValidateSession(ctx, token) {
			return presenter.Unauthorized(c, "invalid or expired session")
		}

		ctx = context.WithValue(ctx, domain.SessionTokenCtxKey, token)
		ctx = context.WithValue(ctx, domain.AuthenticatedCtxKey, true)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// SessionToken returns the bearer token RequireSession stored on the
// request context, or an empty string outside the admin surface.
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(domain.SessionTokenCtxKey).(string)
	return token
}
