package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

func newTestHandler() (*Handler, *mockUserRepo, *echo.Echo) {
	svc, repo := newTestService()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(svc), repo, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func expectHTTPError(t *testing.T, err error, code int, msg string) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code || httpErr.Message != msg {
		t.Errorf("expected %d %q, got %d %v", code, msg, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_AddDoctor(t *testing.T) {
	h, repo, e := newTestHandler()
	rec := httptest.NewRecorder()
	body := `{"name":"Dr. Rao","email":"rao@clinic.test","phone":"1111111111","password":"secret"}`
	if err := h.AddDoctor(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Doctor  map[string]interface{} `json:"doctor"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != "Doctor added successfully!" || resp.Doctor["role"] != "doctor" || resp.Doctor["_id"] == "" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not carry the password")
	}
	if len(repo.users) != 1 {
		t.Errorf("expected 1 user, got %d", len(repo.users))
	}

	err := h.AddDoctor(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusBadRequest, "Doctor already exists")

	err = h.AddDoctor(e.NewContext(jsonRequest(http.MethodPost, `{"name":"Dr"}`), httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusBadRequest, "All fields are required")
}

func TestHandler_ListDoctors_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	if err := h.ListDoctors(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"doctors":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_EditAndDeleteDoctor(t *testing.T) {
	h, repo, e := newTestHandler()
	d := repo.seed(RoleDoctor, "Dr. Rao", "rao@clinic.test", "1")

	rec := httptest.NewRecorder()
	c := withID(e.NewContext(jsonRequest(http.MethodPut, `{"speciality":"ENT"}`), rec), d.ID.String())
	if err := h.EditDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Doctor updated successfully") || repo.users[d.ID].Speciality != "ENT" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = withID(e.NewContext(jsonRequest(http.MethodPut, `{}`), httptest.NewRecorder()), uuid.New().String())
	expectHTTPError(t, h.EditDoctor(c), http.StatusNotFound, "Doctor not found")

	rec = httptest.NewRecorder()
	c = withID(e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec), d.ID.String())
	if err := h.DeleteDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Doctor deleted successfully") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = withID(e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder()), d.ID.String())
	expectHTTPError(t, h.DeleteDoctor(c), http.StatusNotFound, "Doctor not found")
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, repo, e := newTestHandler()
	p := repo.seed(RolePatient, "Asha", "asha@clinic.test", "9876543210")

	tests := []struct {
		name string
		id   string
		body string
		code int
		msg  string
	}{
		{"missing name", p.ID.String(), `{"phone":"9876543210"}`, http.StatusBadRequest, "Name is required"},
		{"bad phone", p.ID.String(), `{"name":"Asha","phone":"123"}`, http.StatusBadRequest, "Enter valid 10-digit mobile number"},
		{"unknown patient", uuid.New().String(), `{"name":"Asha"}`, http.StatusNotFound, "Patient not found"},
		{"malformed id", "abc", `{"name":"Asha"}`, http.StatusNotFound, "Patient not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := withID(e.NewContext(jsonRequest(http.MethodPut, tt.body), httptest.NewRecorder()), tt.id)
			expectHTTPError(t, h.UpdatePatient(c), tt.code, tt.msg)
		})
	}

	rec := httptest.NewRecorder()
	c := withID(e.NewContext(jsonRequest(http.MethodPut, `{"name":"Asha R","email":"r@clinic.test"}`), rec), p.ID.String())
	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Patient updated successfully") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if got := repo.users[p.ID]; got.Name != "Asha R" || got.Phone != "9876543210" {
		t.Errorf("unexpected stored patient %+v", got)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, repo, e := newTestHandler()
	p := repo.seed(RolePatient, "Asha", "asha@clinic.test", "1")

	rec := httptest.NewRecorder()
	c := withID(e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec), p.ID.String())
	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Patient deleted successfully") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	c = withID(e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder()), p.ID.String())
	expectHTTPError(t, h.DeletePatient(c), http.StatusNotFound, "Patient not found")
}

func TestRegisterRoutes_PublicDoctorsNeedNoAuth(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.seed(RoleDoctor, "Dr. Rao", "rao@clinic.test", "1")
	h.RegisterRoutes(e.Group("/api"))

	for _, path := range []string{"/api/public/doctors", "/api/admin/public/doctors"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Dr. Rao") {
			t.Errorf("%s: expected 200 with doctors, got %d %s", path, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/doctors", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestRegisterRoutes_AdminOnly(t *testing.T) {
	h, _, e := newTestHandler()
	asDoctor := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), uuid.NewString(), auth.RoleDoctor)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	h.RegisterRoutes(e.Group("/api", asDoctor))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/patients", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a doctor, got %d", rec.Code)
	}
}
