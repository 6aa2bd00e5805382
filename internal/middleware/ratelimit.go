package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/config"
	"github.com/quillpress/cms-auth/internal/metrics"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

// tokenBucketScript refills at ARGV[2] tokens per ARGV[3] ms up to ARGV[1]
// and takes ARGV[4] tokens. Returns {allowed, remaining, capacity}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local tokens = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local current_tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or 0

local now = redis.call("TIME")
local now_ms = now[1] * 1000 + math.floor(now[2] / 1000)

if last_refill > 0 then
    local elapsed = now_ms - last_refill
    local tokens_to_add = math.floor(elapsed / interval_ms * tokens)
    if tokens_to_add > 0 then
        current_tokens = math.min(capacity, current_tokens + tokens_to_add)
    else
        now_ms = last_refill
    end
end

local allowed = 0
if current_tokens >= requested then
    current_tokens = current_tokens - requested
    allowed = 1
end

redis.call("HSET", key, "tokens", current_tokens, "last_refill", now_ms)
redis.call("EXPIRE", key, 3600)

return {allowed, current_tokens, capacity}`)

// RateLimitMiddleware throttles credential endpoints per client. Redis
// failures let the request through.
type RateLimitMiddleware struct {
	config      *config.RateLimitConfig
	redisClient redis.UniversalClient
	breaker     *CircuitBreaker
	logger      *logrus.Logger
}

func NewRateLimitMiddleware(cfg *config.RateLimitConfig, redisClient redis.UniversalClient, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		config:      cfg,
		redisClient: redisClient,
		breaker:     NewCircuitBreaker("ratelimit-redis", logger),
		logger:      logger,
	}
}

// Handle rate limiting middleware
func (r *RateLimitMiddleware) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !r.config.Enabled || r.redisClient == nil {
			return c.Next()
		}

		key := rateLimitKey(c)

		var (
			allowed   bool
			remaining int
		)
		err := r.breaker.Execute(c.UserContext(), func(ctx context.Context) error {
			var err error
			allowed, remaining, err = r.checkRateLimit(ctx, key)
			return err
		})
		if err != nil {
			if !errors.Is(err, ErrCircuitOpen) {
				r.logger.WithError(err).Warn("Rate limit check failed, allowing request")
			}
			return c.Next()
		}

		resetTime := time.Now().Add(r.config.WindowSize)
		r.setRateLimitHeaders(c, remaining, resetTime)

		if !allowed {
			metrics.RecordRateLimitDrop("ip")
			r.logger.WithFields(logrus.Fields{
				"key":    key,
				"path":   c.Path(),
				"method": c.Method(),
			}).Warn("Rate limit exceeded")

			return r.rateLimitError(c)
		}

		return c.Next()
	}
}

// rateLimitKey buckets by client IP; the limited routes run before
// authentication so there is no user to key on.
func rateLimitKey(c *fiber.Ctx) string {
	return fmt.Sprintf("ratelimit:ip:%s", clientIP(c))
}

// clientIP extracts the real client IP behind the load balancer
func clientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	return c.IP()
}

func (r *RateLimitMiddleware) checkRateLimit(ctx context.Context, key string) (bool, int, error) {
	result, err := tokenBucketScript.Run(ctx, r.redisClient, []string{key},
		r.config.Burst, r.config.RPS, r.config.WindowSize.Milliseconds(), 1,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to execute rate limit script: %w", err)
	}
	if len(result) != 3 {
		return false, 0, fmt.Errorf("unexpected script result length %d", len(result))
	}

	return result[0] == 1, int(result[1]), nil
}

// setRateLimitHeaders sets standard rate limit headers
func (r *RateLimitMiddleware) setRateLimitHeaders(c *fiber.Ctx, remaining int, resetTime time.Time) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(r.config.Burst))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

	if remaining <= 0 {
		retryAfter := int(r.config.WindowSize.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	}
}

func (r *RateLimitMiddleware) rateLimitError(c *fiber.Ctx) error {
	appErr := apperrors.NewAppError(apperrors.CodeRateLimited, "Too many requests. Please try again later.", nil)
	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(RequestID(c)))
}
