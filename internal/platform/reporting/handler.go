package reporting

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rohanchauhan123/appointment-system/internal/platform/auth"
	"github.com/rohanchauhan123/appointment-system/pkg/apperror"
)

// Handler exposes the report jobs to admins.
type Handler struct {
	reporter *Reporter
}

func NewHandler(reporter *Reporter) *Handler {
	return &Handler{reporter: reporter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	jobs := api.Group("/admin/jobs", auth.RequireRole(auth.RoleAdmin))
	jobs.POST("/trigger-report", h.TriggerReport)
	jobs.POST("/export-email", h.ExportEmail)
	jobs.GET("/export-csv", h.ExportCSV)
}

func (h *Handler) TriggerReport(c echo.Context) error {
	res, err := h.reporter.TriggerReport(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportEmail(c echo.Context) error {
	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.reporter.RunAdHocExport(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportCSV(c echo.Context) error {
	body, _, err := h.reporter.ExportCSV(c.Request().Context(), c.QueryParam("startDate"), c.QueryParam("endDate"))
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, h.reporter.DownloadFileName()))
	return c.Blob(http.StatusOK, "text/csv", body)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperror.HTTPStatus(err), apperror.Message(err)).SetInternal(err)
}
