package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https://unpkg.com; frame-ancestors 'none'"
)

type SecurityHeadersConfig struct {
	// HSTS is off in development where the server runs over plain HTTP.
	HSTS bool
	// DocsPrefixes are paths serving HTML that loads the Swagger UI bundle.
	DocsPrefixes []string
}

// SecurityHeaders sets hardening headers on every response. JSON routes get a
// CSP that forbids all loads; documentation pages may load the UI bundle.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			csp := apiCSP
			path := c.Request().URL.Path
			for _, p := range cfg.DocsPrefixes {
				if strings.HasPrefix(path, p) {
					csp = docsCSP
					break
				}
			}
			h.Set("Content-Security-Policy", csp)
			// Responses carry patient contact details.
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
