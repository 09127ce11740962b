package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimitFallbackHoldsStateAcrossRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("JURALIS_WEBHOOK_RPM", "2")
	// Nothing listens here, so every INCR fails and the in-memory
	// fallback has to do the limiting.
	t.Setenv("JURALIS_REDIS_ADDR", "127.0.0.1:1")

	r := gin.New()
	r.Use(RateLimitMiddlewareFromEnv())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("requests within the limit rejected: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %v", codes)
	}
}

func TestRateLimitMiddlewareLimitsPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(1))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":4000"
		r.ServeHTTP(w, req)
		return w.Code
	}
	if code := do("203.0.113.8"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := do("203.0.113.8"); code != http.StatusTooManyRequests {
		t.Fatalf("second request from same ip = %d, want 429", code)
	}
	if code := do("203.0.113.9"); code != http.StatusOK {
		t.Fatalf("other ip should not be limited, got %d", code)
	}
}
