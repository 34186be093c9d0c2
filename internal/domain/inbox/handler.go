package inbox

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any signed-in user reads their own inbox.
	notes := api.Group("/notifications", auth.RequireRole())
	notes.GET("", h.ListNotifications)
	notes.PATCH("/mark-all-read", h.MarkAllRead)
	notes.PATCH("/:id/read", h.MarkRead)

	api.POST("/public/callbacks", h.CreateCallback)

	admin := api.Group("/admin/callbacks", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListCallbacks)
	admin.PATCH("/:id/done", h.MarkCallbackDone)
}

func serverError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
}

func caller(c echo.Context) (uuid.UUID, error) {
	id, err := auth.UserUUIDFromContext(c.Request().Context())
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

// -- Notifications --

func (h *Handler) ListNotifications(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListNotifications(c.Request().Context(), userID)
	if err != nil {
		return serverError(err)
	}
	if items == nil {
		items = []*Notification{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "notifications": items})
}

func (h *Handler) MarkRead(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	n, err := h.svc.MarkRead(c.Request().Context(), id, userID)
	if errors.Is(err, ErrNotificationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "notification": n})
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	userID, err := caller(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.MarkAllRead(c.Request().Context(), userID); err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "All marked as read"})
}

// -- Callbacks --

func (h *Handler) CreateCallback(c echo.Context) error {
	var in CallbackInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		if _, ok := validate.AsFieldError(err); ok {
			return echo.NewHTTPError(http.StatusBadRequest, "Phone number is required")
		}
		return serverError(err)
	}
	cb, err := h.svc.RequestCallback(c.Request().Context(), in)
	if errors.Is(err, ErrPhoneRequired) {
		return echo.NewHTTPError(http.StatusBadRequest, "Phone number is required")
	}
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":  true,
		"callback": cb,
		"message":  "Callback saved",
	})
}

func (h *Handler) ListCallbacks(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCallbacks(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if errors.Is(err, ErrInvalidCallbackState) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid status value")
	}
	if err != nil {
		return serverError(err)
	}
	if items == nil {
		items = []*CallbackRequest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MarkCallbackDone(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Callback not found")
	}
	cb, err := h.svc.MarkCallbackDone(c.Request().Context(), id)
	if errors.Is(err, ErrCallbackNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Callback not found")
	}
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "callback": cb})
}
