// ratelimit.go is the fixed-window rate limiter backed by Redis.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apierrors "github.com/bigkaa/librarium/internal/api/errors"
)

// WindowCounter counts hits of key within the current fixed window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter implements WindowCounter with INCR and EXPIRE.
type RedisCounter struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCounter creates a counter over client.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

// Hit increments the counter of the window that contains now. The key
// expires together with its window.
func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	start := c.now().Truncate(window).Unix()
	windowKey := fmt.Sprintf("lh:ratelimit:%s:%d", key, start)

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val(), nil
}

// CheckReady pings Redis. Returns status ("ok", "fail") and a message.
func (c *RedisCounter) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return "fail", "Redis unavailable: " + err.Error()
	}
	return "ok", "Redis reachable"
}

// RateLimiter caps requests per client IP in a fixed window.
type RateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(counter WindowCounter, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		logger:  logger.With(slog.String("component", "rate_limiter")),
	}
}

// Middleware limits requests under scope. A counter failure lets the
// request through and logs a warning.
func (l *RateLimiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			n, err := l.counter.Hit(r.Context(), scope+":"+ip, l.window)
			if err != nil {
				l.logger.Warn("Rate limit check failed, request allowed",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(l.limit) - n
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(l.limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				l.logger.Info("Rate limit exceeded",
					slog.String("scope", scope),
					slog.String("client_ip", ip),
				)
				apierrors.TooManyRequests(w, "Too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, else the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
