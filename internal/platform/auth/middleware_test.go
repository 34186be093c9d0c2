package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (context.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got context.Context
	err := mw(func(c echo.Context) error {
		got = c.Request().Context()
		return c.String(http.StatusOK, "ok")
	})(c)
	return got, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New().String()
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleDoctor,
	}, testSigningKey)

	ctx, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(ctx); got != userID {
		t.Errorf("expected user %s, got %s", userID, got)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 1 || roles[0] != RoleDoctor {
		t.Errorf("expected [doctor], got %v", roles)
	}
}

func TestJWTMiddleware_MergesRoleClaims(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ext-user"},
		Role:             RolePatient,
		Roles:            []string{"doctor"},
	}, testSigningKey)

	ctx, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roles := RolesFromContext(ctx); len(roles) != 2 {
		t.Errorf("expected 2 roles, got %v", roles)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSigningKey)

	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user"}}, []byte("other-key"))
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerMismatch(t *testing.T) {
	token := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user", Issuer: "someone-else"},
	}, testSigningKey)
	_, err := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "clinic"}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestOptionalJWT(t *testing.T) {
	mw := OptionalJWT(JWTConfig{SigningKey: testSigningKey})

	ctx, err := runMiddleware(t, mw, "")
	if err != nil {
		t.Fatalf("anonymous request should pass: %v", err)
	}
	if UserIDFromContext(ctx) != "" {
		t.Error("expected no identity for anonymous request")
	}

	_, err = runMiddleware(t, mw, "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	ctx, err := runMiddleware(t, DevAuthMiddleware(JWTConfig{}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(ctx); got != DevUserID.String() {
		t.Errorf("expected dev user, got %s", got)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected [admin], got %v", roles)
	}
}

func TestDevAuthMiddleware_Impersonation(t *testing.T) {
	e := echo.New()
	patientID := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User-ID", patientID)
	req.Header.Set("X-Dev-Role", RolePatient)
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware(JWTConfig{})(func(c echo.Context) error {
		if got := UserIDFromContext(c.Request().Context()); got != patientID {
			t.Errorf("expected %s, got %s", patientID, got)
		}
		if roles := RolesFromContext(c.Request().Context()); roles[0] != RolePatient {
			t.Errorf("expected patient role, got %v", roles)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_VerifiesTokenWhenKeyConfigured(t *testing.T) {
	_, err := runMiddleware(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer not-a-token")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestUserUUIDFromContext(t *testing.T) {
	id := uuid.New()
	got, err := UserUUIDFromContext(WithIdentity(context.Background(), id.String(), RolePatient))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}

	if _, err := UserUUIDFromContext(context.Background()); err == nil {
		t.Error("expected error without identity")
	}
	if _, err := UserUUIDFromContext(WithIdentity(context.Background(), "ext-user")); err == nil {
		t.Error("expected error for non-uuid subject")
	}
}
