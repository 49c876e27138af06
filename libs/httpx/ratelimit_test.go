package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterFixedWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, nil)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	now = now.Add(2 * time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rw.Code)
	}
}

func TestRedisRateLimiterCustomKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	byUser := func(r *http.Request) string { return r.Header.Get("X-User") }
	h := NewRedisRateLimiter(rdb, 1, time.Minute, "test", byUser).Middleware(nil, false)(okHandler())

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", user)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}

	if code := send("alice"); code != http.StatusOK {
		t.Fatalf("first alice request: %d", code)
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("second alice request: %d", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("bob has his own bucket, got %d", code)
	}
}

func TestRedisRateLimiterFailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	h := NewRedisRateLimiter(rdb, 1, time.Minute, "", nil).Middleware(nil, true)(okHandler())
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rw.Code)
	}
}

func TestChainOrderAndRequestID(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Error("expected request id in context")
		}
	}), WithRequestID, mk("a"), nil, mk("b"))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order %v", order)
	}
	if rw.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id response header")
	}
}
