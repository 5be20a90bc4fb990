package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRoleKey  contextKey = "user_role"
	UserEmailKey contextKey = "user_email"
	ActorKey     contextKey = "actor"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAgent
}

// Actor is the authenticated user a request acts on behalf of.
type Actor struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	Active bool      `json:"is_active"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type JWTConfig struct {
	Tokens  *TokenIssuer
	Skipper middleware.Skipper
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	skipper := cfg.Skipper
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			tokenStr, ok := BearerToken(authHeader)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := cfg.Tokens.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			// Set values on echo context for tenant middleware
			c.Set("jwt_tenant_id", claims.TenantID)

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRoleKey, Role(claims.Role))
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// UserLookup resolves the current state of a user named by a token subject.
type UserLookup interface {
	LookupActor(ctx context.Context, id uuid.UUID) (Actor, error)
}

// ActiveUserMiddleware reloads the token subject on every request so that
// deactivation takes effect for tokens issued earlier. It must run after the
// tenant middleware because users live in the tenant schema.
func ActiveUserMiddleware(users UserLookup, skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			ctx := c.Request().Context()
			id, err := uuid.Parse(UserIDFromContext(ctx))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			actor, err := users.LookupActor(ctx, id)
			if err != nil || !actor.Active {
				return echo.NewHTTPError(http.StatusUnauthorized, "user not found or inactive")
			}

			ctx = context.WithValue(ctx, ActorKey, actor)
			ctx = context.WithValue(ctx, UserRoleKey, actor.Role)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", actor.ID.String())

			return next(c)
		}
	}
}

// WithActor stores actor in ctx. Used by the active-user middleware and tests.
func WithActor(ctx context.Context, actor Actor) context.Context {
	ctx = context.WithValue(ctx, ActorKey, actor)
	ctx = context.WithValue(ctx, UserIDKey, actor.ID.String())
	return context.WithValue(ctx, UserRoleKey, actor.Role)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ActorKey).(Actor)
	return a, ok
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RoleFromContext(ctx context.Context) Role {
	role, _ := ctx.Value(UserRoleKey).(Role)
	return role
}
