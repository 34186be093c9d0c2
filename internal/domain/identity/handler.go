package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/public/doctors", h.ListDoctors)
	api.GET("/admin/public/doctors", h.ListDoctors)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/add-doctor", h.AddDoctor)
	admin.GET("/doctors", h.ListDoctors)
	admin.PUT("/edit-doctor/:id", h.EditDoctor)
	admin.DELETE("/delete-doctor/:id", h.DeleteDoctor)
	admin.GET("/patients", h.ListPatients)
	admin.PUT("/patients/:id", h.UpdatePatient)
	admin.DELETE("/patients/:id", h.DeletePatient)
}

func serverError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
}

func nonNil(users []*User) []*User {
	if users == nil {
		return []*User{}
	}
	return users
}

// -- Doctors --

func (h *Handler) AddDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		if _, ok := validate.AsFieldError(err); ok {
			return echo.NewHTTPError(http.StatusBadRequest, "All fields are required")
		}
		return serverError(err)
	}

	u, err := h.svc.AddDoctor(c.Request().Context(), in)
	switch {
	case errors.Is(err, ErrMissingField):
		return echo.NewHTTPError(http.StatusBadRequest, "All fields are required")
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusBadRequest, "Doctor already exists")
	case err != nil:
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Doctor added successfully!",
		"doctor":  u,
	})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	doctors, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "doctors": nonNil(doctors)})
}

func (h *Handler) EditDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Doctor not found")
	}
	var in DoctorUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.svc.EditDoctor(c.Request().Context(), id, in)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Doctor not found")
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusBadRequest, "Doctor already exists")
	case err != nil:
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Doctor updated successfully",
		"doctor":  u,
	})
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Doctor not found")
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Doctor not found")
		}
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Doctor deleted successfully"})
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	patients, err := h.svc.ListPatients(c.Request().Context())
	if err != nil {
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "patients": nonNil(patients)})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	var in PatientUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		fe, ok := validate.AsFieldError(err)
		switch {
		case ok && fe.Has("name"):
			return echo.NewHTTPError(http.StatusBadRequest, "Name is required")
		case ok && fe.Failed("phone", "phone10"):
			return echo.NewHTTPError(http.StatusBadRequest, "Enter valid 10-digit mobile number")
		}
		return serverError(err)
	}

	u, err := h.svc.UpdatePatient(c.Request().Context(), id, in)
	switch {
	case errors.Is(err, ErrMissingField):
		return echo.NewHTTPError(http.StatusBadRequest, "Name is required")
	case errors.Is(err, ErrInvalidPhone):
		return echo.NewHTTPError(http.StatusBadRequest, "Enter valid 10-digit mobile number")
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusBadRequest, "Email already in use")
	case err != nil:
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Patient updated successfully",
		"patient": u,
	})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
		}
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Patient deleted successfully"})
}
