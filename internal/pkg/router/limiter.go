package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/Shah039zaib/b2automate/internal/pkg/billing"
	"github.com/Shah039zaib/b2automate/internal/pkg/cache"
	"github.com/Shah039zaib/b2automate/internal/pkg/env"
	"github.com/Shah039zaib/b2automate/internal/pkg/middleware"
	"github.com/Shah039zaib/b2automate/internal/pkg/usercontext"
)

// NewLimiterStorage creates the Redis storage shared by all API instances for
// rate limit counters, on its own database next to the entitlement cache.
func NewLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("API_RATE_LIMIT_DB", 1),
		Reset:    false,
	})
}

// newAPILimiter throttles untrusted traffic per IP. Internal callers and
// signed provider events are never limited; a 429 on the usage route is
// always a plan cap.
func newAPILimiter(storage fiber.Storage, secret string) fiber.Handler {
	return limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			if usercontext.IsInternal(c) {
				return true
			}
			sig := c.Get(middleware.HeaderEventSignature)
			return sig != "" && billing.VerifyEventSignature(c.Body(), sig, secret)
		},
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: env.GetEnvDuration("API_RATE_LIMIT_WINDOW", time.Minute),
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	})
}
