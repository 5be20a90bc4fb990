package blobstore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/internal/platform/db"
)

type listResponse struct {
	Items []*Metadata `json:"items"`
	Total int         `json:"total"`
}

// Handler exposes a tenant's archived reports to admins.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/reports", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.handleList)
	admin.GET("/:category/:file", h.handleDownload)
}

func (h *Handler) handleList(c echo.Context) error {
	tenant := db.TenantFromContext(c.Request().Context())
	prefix := TenantPrefix(tenant)
	if category := c.QueryParam("category"); category != "" {
		if !AllowedCategories[category] {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
		}
		prefix += category + "/"
	}

	items, err := h.store.List(c.Request().Context(), prefix)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list reports").SetInternal(err)
	}
	if items == nil {
		items = []*Metadata{}
	}
	return c.JSON(http.StatusOK, listResponse{Items: items, Total: len(items)})
}

func (h *Handler) handleDownload(c echo.Context) error {
	category := c.Param("category")
	if !AllowedCategories[category] {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	tenant := db.TenantFromContext(c.Request().Context())
	key := ReportKey(tenant, category, c.Param("file"))

	rc, meta, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read report").SetInternal(err)
	}
	defer rc.Close()

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "text/csv"
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, contentType, rc)
}
