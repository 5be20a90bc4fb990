package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

func hasRole(have Role, allowed []Role) bool {
	if have == RoleAdmin {
		return true
	}
	for _, r := range allowed {
		if have == r {
			return true
		}
	}
	return false
}

func joinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins always pass.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hasRole(RoleFromContext(c.Request().Context()), roles) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", joinRoles(roles)))
		}
	}
}

// Authorize is the service-layer counterpart of RequireRole.
func Authorize(actor Actor, roles ...Role) error {
	if !actor.Active {
		return apperror.Authentication("account is inactive")
	}
	if !hasRole(actor.Role, roles) {
		return apperror.Authorization("required role: %s", joinRoles(roles))
	}
	return nil
}
