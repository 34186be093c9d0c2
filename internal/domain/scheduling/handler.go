package scheduling

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

const slotTakenMessage = "This time slot is no longer available. Another appointment was just booked for this slot. Please select a different time."

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the appointment endpoints on the /api group. The
// group resolves the caller's identity; each route gates on role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/admin/appointments/doctor/availability", h.Availability, auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	api.GET("/admin/appointments/public/doctor/availability", h.Availability)
	api.GET("/public/doctor/availability", h.Availability)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/doctors/available", h.AvailableDoctors)
	admin.GET("/appointments", h.ListAppointments)
	admin.POST("/appointments/walkin", h.BookWalkIn)
	admin.PATCH("/appointments/:id/status", h.SetStatus)
	admin.PATCH("/appointments/:id/cancel", h.Acknowledge)

	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.POST("/appointments", h.BookOnline)
	patient.GET("/appointments", h.MyAppointments)
}

// httpError maps domain errors to responses. Anything unknown is a 500
// with the cause attached for the request logger.
func httpError(err error) error {
	var sugg *SuggestionSlotError
	switch {
	case errors.As(err, &sugg):
		if sugg.Legacy {
			return echo.NewHTTPError(http.StatusBadRequest, "Suggested date and time must be in the future")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "All suggested dates and times must be in the future")
	case errors.Is(err, ErrMissingAcknowledgementInput):
		return echo.NewHTTPError(http.StatusBadRequest, "Provide a reason or suggest an alternate slot/doctor")
	case errors.Is(err, ErrMissingField):
		return echo.NewHTTPError(http.StatusBadRequest, "All fields are required")
	case errors.Is(err, ErrPastOrInvalidSlot):
		return echo.NewHTTPError(http.StatusBadRequest, "Please select a future date and time")
	case errors.Is(err, ErrUnknownSlot):
		return echo.NewHTTPError(http.StatusBadRequest, "Selected time slot is not offered by the clinic")
	case errors.Is(err, ErrInvalidDate):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid date")
	case errors.Is(err, ErrInvalidSlotFormat):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid time slot")
	case errors.Is(err, ErrUnknownDoctor):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid doctor")
	case errors.Is(err, ErrSlotConflict):
		return echo.NewHTTPError(http.StatusBadRequest, slotTakenMessage)
	case errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid status value")
	case errors.Is(err, ErrUnknownPatient):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
}

// bindBooking decodes and validates a booking body.
func bindBooking(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		if _, ok := validate.AsFieldError(err); ok {
			return echo.NewHTTPError(http.StatusBadRequest, "All fields are required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
	}
	return nil
}

func (h *Handler) Availability(c echo.Context) error {
	doctorID, date := c.QueryParam("doctorId"), c.QueryParam("date")
	if doctorID == "" || date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctorId and date required")
	}
	av, err := h.svc.Availability(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, struct {
		Success bool `json:"success"`
		*Availability
	}{true, av})
}

type doctorRef struct {
	ID   uuid.UUID `json:"_id"`
	Name string    `json:"name"`
}

func (h *Handler) AvailableDoctors(c echo.Context) error {
	date, slot := c.QueryParam("date"), c.QueryParam("timeSlot")
	if date == "" || slot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date and timeSlot required")
	}
	doctors, err := h.svc.AvailableDoctors(c.Request().Context(), date, slot)
	if err != nil {
		return httpError(err)
	}
	refs := make([]doctorRef, 0, len(doctors))
	for _, d := range doctors {
		refs = append(refs, doctorRef{ID: d.ID, Name: d.Name})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "available": refs})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f := ListFilter{
		ShowCompleted:    strings.EqualFold(c.QueryParam("showCompleted"), "true"),
		ShowAcknowledged: strings.EqualFold(c.QueryParam("showAcknowledged"), "true"),
	}
	items, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*AppointmentView{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "appointments": items})
}

func (h *Handler) BookWalkIn(c echo.Context) error {
	var req WalkInRequest
	if err := bindBooking(c, &req); err != nil {
		return err
	}
	view, err := h.svc.BookWalkIn(c.Request().Context(), req)
	if errors.Is(err, ErrPastOrInvalidSlot) {
		return echo.NewHTTPError(http.StatusBadRequest, "Please select a future date and time for the walk-in appointment")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "appointment": view})
}

func (h *Handler) BookOnline(c echo.Context) error {
	patientID, err := auth.UserUUIDFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req OnlineBookingRequest
	if err := bindBooking(c, &req); err != nil {
		return err
	}
	view, err := h.svc.BookOnline(c.Request().Context(), patientID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "appointment": view})
}

func (h *Handler) MyAppointments(c echo.Context) error {
	patientID, err := auth.UserUUIDFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	items, err := h.svc.ListPatientAppointments(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*AppointmentView{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "appointments": items})
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.svc.SetStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Status updated",
		"appointment": view,
	})
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	}
	var req AcknowledgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Acknowledge(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Appointment acknowledged and notification recorded",
		"appointment": res,
	})
}
