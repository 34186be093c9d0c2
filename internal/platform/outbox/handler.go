package outbox

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	g := admin.Group("/outbox", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.POST("/:id/retry", h.Retry)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.dispatcher.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if errors.Is(err, ErrInvalidStatus) {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be pending, done or failed")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.dispatcher.Retry(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Outbox entry not found")
	case errors.Is(err, ErrNotRetryable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": e.Status == StatusDone, "entry": e})
}
