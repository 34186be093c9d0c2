package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

func callLimited(h echo.HandlerFunc, e *echo.Echo, remoteAddr, userID string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, auth.RolePatient))
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		rec, err := callLimited(h, e, "10.0.0.1:1234", "")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		if _, err := callLimited(h, e, "10.0.0.1:1234", ""); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := callLimited(h, e, "10.0.0.1:1234", "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	e := echo.New()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if _, err := callLimited(h, e, "10.0.0.1:1", "user-a"); err != nil {
		t.Fatalf("user-a first request: %v", err)
	}
	if _, err := callLimited(h, e, "10.0.0.1:1", "user-b"); err != nil {
		t.Fatalf("user-b shares the IP but has its own bucket: %v", err)
	}
	if _, err := callLimited(h, e, "10.0.0.1:1", "user-a"); err == nil {
		t.Error("expected user-a to be limited")
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	now := time.Now()
	b := newTokenBucket(0, 1, now)
	if ok, _ := b.allow(now); !ok {
		t.Fatal("first request should use the burst token")
	}
	ok, retry := b.allow(now)
	if ok || retry != 1 {
		t.Errorf("expected denied with retry 1, got ok=%v retry=%d", ok, retry)
	}
}

func TestRateLimiterStore_SweepsIdleBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	store.getBucket("a")
	clock = clock.Add(2 * time.Minute)
	store.getBucket("b")

	if _, ok := store.buckets["a"]; ok {
		t.Error("expected idle bucket to be swept")
	}
	if _, ok := store.buckets["b"]; !ok {
		t.Error("expected fresh bucket to remain")
	}
}
