package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"worldpay-checkout/utils"
)

// Sliding window over a sorted set of request timestamps.
const slidingWindowScript = `
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)

if current < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, ttl)
    return {1, limit - current - 1}
end
return {0, 0}
`

// Evaler is the slice of the Redis client the limiter needs.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Message  string
}

type RateLimiter struct {
	client Evaler
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client Evaler, config RateLimitConfig) *RateLimiter {
	if config.Message == "" {
		config.Message = "Too many payment attempts. Please wait and try again."
	}
	return &RateLimiter{client: client, config: config, now: time.Now}
}

// Middleware limits requests per client IP and route. Redis errors let the
// request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)

		allowed, remaining, reset, err := rl.check(r.Context(), key)
		if err != nil {
			log.Printf("Rate limit check error: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			log.Printf("Rate limit exceeded for key: %s", key)
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
			utils.SendErrorResponse(w, http.StatusTooManyRequests, rl.config.Message)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) key(r *http.Request) string {
	scope := r.URL.Path
	if id := SessionIDFromContext(r.Context()); id != "" {
		scope = id
	}
	return fmt.Sprintf("rate_limit:submit:%s:%s", clientIP(r), scope)
}

func (rl *RateLimiter) check(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := rl.now()
	windowStart := now.Add(-rl.config.Window)
	ttl := int(rl.config.Window.Seconds()) + 1

	result, err := rl.client.Eval(ctx, slidingWindowScript, []string{key},
		windowStart.UnixMilli(), rl.config.Requests, now.UnixMilli(), uuid.New().String(), ttl).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}
	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, time.Time{}, fmt.Errorf("failed to parse redis result")
	}

	return allowed == 1, int(remaining), now.Add(rl.config.Window), nil
}

// SecurityHeadersMiddleware sets the response hardening headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		ips := strings.Split(ip, ",")
		return strings.TrimSpace(ips[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
