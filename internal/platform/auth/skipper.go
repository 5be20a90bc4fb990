package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer authentication. The websocket endpoint verifies
// its own token because browsers cannot set headers on upgrade requests.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/metrics":           true,
	"/ws":                true,
	"/api/v1/auth/login": true,
	"/api/openapi.json":  true,
	"/api/docs":          true,
}

// infraPaths additionally bypass tenant resolution.
var infraPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper returns true for requests whose route should skip bearer authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is reachable without a bearer token.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// IsInfraPath reports whether path is a health or metrics endpoint.
func IsInfraPath(path string) bool {
	return infraPaths[path]
}
