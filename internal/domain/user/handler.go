package user

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the auth and user-management endpoints. loginMW
// wraps the login route only, typically with a per-IP limiter.
func (h *Handler) RegisterRoutes(api *echo.Group, loginMW ...echo.MiddlewareFunc) {
	api.POST("/auth/login", h.Login, loginMW...)
	api.GET("/auth/me", h.Me)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/agents", h.CreateAgent)
	admin.GET("/agents", h.ListAgents)
	admin.PUT("/agents/:id/status", h.UpdateStatus)
	admin.POST("/admins", h.CreateAdmin)
	admin.GET("/admins", h.ListAdmins)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	resp, err := h.svc.Login(ctx, db.TenantFromContext(ctx), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Get(c.Request().Context(), actor.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CreateAgent(c echo.Context) error {
	return h.create(c, h.svc.CreateAgent)
}

func (h *Handler) CreateAdmin(c echo.Context) error {
	return h.create(c, h.svc.CreateAdmin)
}

type createFunc func(ctx context.Context, actor auth.Actor, req CreateRequest) (*User, error)

func (h *Handler) create(c echo.Context, fn createFunc) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := fn(c.Request().Context(), actor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListAgents(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	users, err := h.svc.ListAgents(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) ListAdmins(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	users, err := h.svc.ListAdmins(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_active must be a boolean")
	}
	u, err := h.svc.SetStatus(c.Request().Context(), actor, id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func actorFrom(c echo.Context) (auth.Actor, error) {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor, nil
}

func httpError(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err)).SetInternal(err)
}
