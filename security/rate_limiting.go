package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis     *redis.Client
	perMinute int64
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: redisClient, perMinute: int64(perMinute)}
}

// AntiBotMiddleware rejects obvious automation before a request reaches
// the queue handlers: known bot user agents outright, and per-IP request
// floods with a rolling one-minute counter.
func (r *RateLimiter) AntiBotMiddleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		userAgent := e.Request.Header.Get("User-Agent")
		if isSuspiciousUserAgent(userAgent) {
			return e.JSON(403, map[string]string{
				"error": "Access denied",
			})
		}

		if r.redis != nil {
			ip := e.RealIP()
			key := fmt.Sprintf("antibot:%s", ip)

			count, err := r.redis.Incr(e.Request.Context(), key).Result()
			if err == nil {
				if count == 1 {
					r.redis.Expire(e.Request.Context(), key, time.Minute)
				}
				if count > r.perMinute {
					return e.JSON(429, map[string]string{
						"error": "Too many requests",
					})
				}
			}
		}

		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
