package documents

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/patients/:id/files", h.Upload)
	admin.GET("/patients/:id/files", h.List)
	admin.GET("/files/:id", h.Download)
	admin.DELETE("/files/:id", h.Delete)
}

func serverError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "Server Error").SetInternal(err)
}

func (h *Handler) Upload(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	src, err := file.Open()
	if err != nil {
		return serverError(err)
	}
	defer src.Close()

	f, err := h.svc.Upload(c.Request().Context(), patientID, file.Filename, file.Header.Get("Content-Type"), src)
	switch {
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	case errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	case err != nil:
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "File uploaded successfully",
		"file":    f,
	})
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	}
	files, err := h.svc.List(c.Request().Context(), patientID)
	if err != nil {
		return serverError(err)
	}
	if files == nil {
		files = []*PatientFile{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "files": files})
}

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	f, rc, err := h.svc.Open(c.Request().Context(), id)
	if errors.Is(err, ErrFileNotFound) || errors.Is(err, blobstore.ErrBlobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	if err != nil {
		return serverError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.OriginalName))
	return c.Stream(http.StatusOK, f.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "File not found")
		}
		return serverError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "File deleted successfully"})
}
