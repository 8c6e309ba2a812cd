package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// memCounter is an in-memory WindowCounter.
type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func (c *memCounter) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.hits == nil {
		c.hits = make(map[string]int64)
	}
	c.hits[key]++
	return c.hits[key], nil
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	limiter := NewRateLimiter(&memCounter{}, 3, time.Minute, testLogger())
	handler := limiter.Middleware("sign-in")(okHandler)

	for i := 1; i <= 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		want := http.StatusOK
		if i == 4 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
		if i == 4 {
			if code := errorCode(t, rec.Body); code != "TOO_MANY_REQUESTS" {
				t.Errorf("code = %q", code)
			}
			if rec.Header().Get("Retry-After") != "60" {
				t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
			}
		}
	}

	// Another client is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	limiter := NewRateLimiter(&memCounter{err: errors.New("redis down")}, 1, time.Minute, testLogger())
	handler := limiter.Middleware("sign-up")(okHandler)

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"forwarded first hop", "203.0.113.7, 10.0.0.1", "10.0.0.1:1234", "203.0.113.7"},
		{"remote addr", "", "192.0.2.5:4321", "192.0.2.5"},
		{"remote addr without port", "", "192.0.2.5", "192.0.2.5"},
		{"blank forwarded", " , 10.0.0.1", "192.0.2.9:1", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestRedisCounter runs against a real Redis. Enabled with TEST_INTEGRATION=1.
func TestRedisCounter(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION is not set")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })

	counter := NewRedisCounter(client)
	fixed := time.Date(2026, 3, 10, 12, 0, 30, 0, time.UTC)
	counter.now = func() time.Time { return fixed }

	for want := int64(1); want <= 3; want++ {
		got, err := counter.Hit(ctx, "sign-in:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("Hit: %v", err)
		}
		if got != want {
			t.Errorf("Hit() = %d, want %d", got, want)
		}
	}

	ttl, err := client.TTL(ctx, fmt.Sprintf("lh:ratelimit:sign-in:1.2.3.4:%d", fixed.Truncate(time.Minute).Unix())).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}

	// The next window starts from zero.
	counter.now = func() time.Time { return fixed.Add(time.Minute) }
	got, err := counter.Hit(ctx, "sign-in:1.2.3.4", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("Hit() in next window = %d, want 1", got)
	}

	if status, msg := counter.CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q, %q", status, msg)
	}
}
