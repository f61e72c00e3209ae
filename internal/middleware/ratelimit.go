package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoRedis = errors.New("redis client is nil")

// Quota is the state of one caller's fixed window after a request was counted.
type Quota struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development":
		return true
	}
	return false
}

// Consume counts one request against resource/id in a fixed window of the
// given length. Limits are not enforced when APP_ENV is empty, "test" or
// "development".
func Consume(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (Quota, error) {
	if rateLimitBypassed() {
		return Quota{Allowed: true, Remaining: limit, ResetIn: window}, nil
	}
	if rdb == nil {
		return Quota{}, errNoRedis
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		pttl = p.PTTL(ctx, key)
		return nil
	}); err != nil {
		return Quota{}, err
	}

	// A key without expiry is a new window, or one whose EXPIRE was lost.
	resetIn := pttl.Val()
	if resetIn <= 0 {
		if err := rdb.PExpire(ctx, key, window).Err(); err != nil {
			return Quota{}, err
		}
		resetIn = window
	}

	count := incr.Val()
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Quota{
		Allowed:   count <= int64(limit),
		Remaining: int(remaining),
		ResetIn:   resetIn,
	}, nil
}

// CheckRateLimit reports whether the caller is still within limit.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	q, err := Consume(ctx, rdb, resource, id, limit, window)
	return q.Allowed, err
}

// RateLimit enforces limit requests per window, keyed by user when
// authenticated and by IP otherwise. Redis failures fail open.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid := c.Locals("userID"); uid != nil {
			id = fmt.Sprintf("user:%v", uid)
		}
		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		q, err := Consume(c.UserContext(), rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit unavailable, failing closed",
					slog.String("resource", resource),
					slog.String("error", err.Error()),
				)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
		if !q.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(q.ResetIn.Seconds()))))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
