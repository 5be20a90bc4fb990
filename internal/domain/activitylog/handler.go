package activitylog

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin/activity-logs", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.ListAll)
	g.GET("/appointment/:id", h.ListByAppointment)
	g.GET("/agent/:id", h.ListByAgent)
}

func (h *Handler) ListAll(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	entries, err := h.svc.ListAll(c.Request().Context(), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListByAppointment(c echo.Context) error {
	return h.listBy(c, h.svc.ListByAppointment)
}

func (h *Handler) ListByAgent(c echo.Context) error {
	return h.listBy(c, h.svc.ListByAgent)
}

func (h *Handler) listBy(c echo.Context, fn func(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]*Entry, error)) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := fn(c.Request().Context(), actor, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err)).SetInternal(err)
}
