package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRateLimitedHandler(t *testing.T, config RateLimitConfig) (http.Handler, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	handler := RateLimitMiddleware(redisClient, config, zap.NewNop())(okHandler())

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}
	return handler, cleanup
}

func TestProperty_RateLimitBlocksRequestsPastTheWindow(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a client gets exactly the window allowance, the rest get 429", prop.ForAll(
		func(requestsPerWindow int, excessRequests int) bool {
			handler, cleanup := newRateLimitedHandler(t, RateLimitConfig{
				RequestsPerWindow: requestsPerWindow,
				Window:            time.Second,
				KeyPrefix:         "test_rate_limit",
			})
			defer cleanup()

			successCount := 0
			blockedCount := 0
			for i := 0; i < requestsPerWindow+excessRequests; i++ {
				req := httptest.NewRequest("GET", "/api/payments/confirm", nil)
				req.RemoteAddr = "192.168.1.100"
				w := httptest.NewRecorder()

				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					successCount++
				case http.StatusTooManyRequests:
					blockedCount++
				}
			}

			return successCount == requestsPerWindow && blockedCount == excessRequests
		},
		gen.IntRange(5, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitHeadersPresentOnAllowedRequests(t *testing.T) {
	handler, cleanup := newRateLimitedHandler(t, RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Second,
		KeyPrefix:         "test_rate_limit_headers",
	})
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/payments/confirm", nil)
	req.RemoteAddr = "192.168.1.101"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Remaining") != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitCountsUsersSeparatelyFromEachOther(t *testing.T) {
	handler, cleanup := newRateLimitedHandler(t, RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Second,
		KeyPrefix:         "test_rate_limit_users",
	})
	defer cleanup()

	for _, addr := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest("GET", "/api/payments/confirm", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("first request from %s got %d, want 200", addr, w.Code)
		}
	}
}
