package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimit returns a gin handler enforcing per-IP limits.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(c.Request.Context(), ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// SimpleTokenBucket is an in-memory rate limiter for single-instance dev runs.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
	}
}

// Allow implements Limiter.
func (l *SimpleTokenBucket) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := time.Now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// RedisWindow is a fixed-window limiter shared across instances; the service
// is stateless, so the shared counter is what makes the limit meaningful
// behind a load balancer. Fails open when Redis is unreachable.
type RedisWindow struct {
	client    *redis.Client
	perWindow int
	window    time.Duration
}

// NewRedisWindow creates a limiter allowing perMinute requests per key per minute.
func NewRedisWindow(client *redis.Client, perMinute int) *RedisWindow {
	return &RedisWindow{client: client, perWindow: perMinute, window: time.Minute}
}

// Allow implements Limiter with INCR + EXPIRE on first hit of each window.
func (l *RedisWindow) Allow(ctx context.Context, key string) bool {
	rkey := "ratelimit:" + key
	n, err := l.client.Incr(ctx, rkey).Result()
	if err != nil {
		return true
	}
	if n == 1 {
		l.client.Expire(ctx, rkey, l.window)
	}
	return n <= int64(l.perWindow)
}
