package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// The relay wires Echo's memory-store rate limiter only when
// server.rate_limit.enabled is set; these tests pin down the behavior the
// wiring relies on.

func TestRateLimiter_BurstExhausted(t *testing.T) {
	e := echo.New()

	// 1 request per second, burst of 1; the burst should run out immediately.
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1))
	e.Use(echomw.RateLimiter(store))
	e.Any("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// First request should succeed.
	req := httptest.NewRequest(http.MethodGet, "/?url=https://example.com/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Subsequent requests should be rate-limited (429).
	got429 := false
	for i := 0; i < 10; i++ {
		req = httptest.NewRequest(http.MethodGet, "/?url=https://example.com/", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}
}

func TestRateLimiter_AbsentByDefault(t *testing.T) {
	e := echo.New()
	e.Any("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Without the limiter installed, a burst of requests all succeed.
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/?url=https://example.com/", http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}
}
