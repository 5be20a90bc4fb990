package db

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
)

// TenantHeader names the request header that selects a tenant before login.
const TenantHeader = "X-Tenant-ID"

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaName returns the Postgres schema that holds a tenant's tables.
func SchemaName(tenantID string) string {
	return "tenant_" + tenantID
}

// ValidTenantID reports whether id is safe to interpolate into a schema name.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// TenantMiddleware pins one pooled connection to the request with
// search_path set to the tenant schema. Repositories pick it up through
// ConnFromContext.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := resolveTenant(c, defaultTenant)
			if !ValidTenantID(tenantID) {
				return apperror.Validation("invalid tenant identifier")
			}
			c.Set("tenant_id", tenantID)

			entered := false
			err := WithTenantConn(c.Request().Context(), pool, tenantID, func(ctx context.Context) error {
				entered = true
				c.SetRequest(c.Request().WithContext(ctx))
				return next(c)
			})
			if err != nil && !entered {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable").SetInternal(err)
			}
			return err
		}
	}
}

// WithTenantConn runs fn with a tenant-scoped connection in its context.
// Background jobs and CLI commands use it in place of TenantMiddleware.
func WithTenantConn(ctx context.Context, pool *pgxpool.Pool, tenantID string, fn func(ctx context.Context) error) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer resetAndRelease(conn)

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(tenantID))); err != nil {
		return fmt.Errorf("set search_path for %s: %w", tenantID, err)
	}

	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	ctx = context.WithValue(ctx, DBConnKey, conn)
	return fn(ctx)
}

// resetAndRelease returns conn to the pool with the default search_path. A
// connection that cannot be reset is closed instead of reused.
func resetAndRelease(conn *pgxpool.Conn) {
	if _, err := conn.Exec(context.Background(), "RESET search_path"); err != nil {
		conn.Conn().Close(context.Background())
	}
	conn.Release()
}

// resolveTenant picks the tenant from the token claim, then the header, then
// the tenant_id query parameter, falling back to defaultTenant.
func resolveTenant(c echo.Context, defaultTenant string) string {
	candidates := []string{
		stringValue(c.Get("jwt_tenant_id")),
		c.Request().Header.Get(TenantHeader),
		c.QueryParam("tenant_id"),
	}
	for _, id := range candidates {
		if id != "" {
			return id
		}
	}
	return defaultTenant
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// ConnFromContext returns the tenant-scoped connection, or nil outside a
// tenant scope.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TenantFromContext returns the tenant id, or "" outside a tenant scope.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// CreateTenantSchema creates the tenant schema and, when migrations is
// non-nil, brings it up to date.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string, migrations fs.FS) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	schema := SchemaName(tenantID)
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	if migrations == nil {
		return nil
	}
	if _, err := NewMigrator(pool, migrations).Up(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s: %w", schema, err)
	}
	return nil
}
