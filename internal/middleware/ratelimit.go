package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/examprep/practice-api/internal/clock"
	"github.com/examprep/practice-api/internal/metrics"
)

// slidingWindow trims entries older than the window, then records the
// request only if the client is still under the limit. Rejected requests
// are not recorded. Returns {allowed, count, oldest score in ms}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, count + 1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, count, tonumber(oldest[2])}
`)

// RateLimiter caps how many /api/v1 requests one client address may make
// per window. Free trial usage is metered separately; this only protects
// the API from bursts.
type RateLimiter struct {
	client  redis.Cmdable
	prefix  string
	maxReqs int
	window  time.Duration
	clock   clock.Clock
}

// NewRateLimiter allows maxReqs requests per windowSec seconds for each
// client address. Keys live under ratelimit:<prefix>:.
func NewRateLimiter(client redis.Cmdable, prefix string, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{
		client:  client,
		prefix:  prefix,
		maxReqs: maxReqs,
		window:  time.Duration(windowSec) * time.Second,
		clock:   clock.System,
	}
}

type windowResult struct {
	allowed    bool
	count      int64
	retryAfter time.Duration
}

// Middleware enforces the limit and reports it in X-RateLimit-* headers.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		res, err := rl.take(r.Context(), "ratelimit:"+rl.prefix+":"+ip)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.maxReqs))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.maxReqs)-res.count, 0), 10))

		if !res.allowed {
			metrics.RateLimitRejections.WithLabelValues(rl.prefix).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.retryAfter.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) take(ctx context.Context, key string) (windowResult, error) {
	now := rl.clock.Now().UnixMilli()
	windowMs := rl.window.Milliseconds()

	vals, err := slidingWindow.Run(ctx, rl.client, []string{key},
		now, windowMs, rl.maxReqs, uuid.NewString()).Int64Slice()
	if err != nil {
		return windowResult{}, err
	}
	if len(vals) != 3 {
		return windowResult{}, fmt.Errorf("unexpected rate limit reply %v", vals)
	}

	res := windowResult{allowed: vals[0] == 1, count: vals[1]}
	if !res.allowed {
		res.retryAfter = max(time.Duration(vals[2]+windowMs-now)*time.Millisecond, time.Second)
	}
	return res, nil
}

// clientIP prefers the first X-Forwarded-For hop set by the reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
