// Package ratelimit enforces a fixed-window request limit backed by Redis,
// so every API replica counts against the same budget.
package ratelimit

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/complyassist/backend/internal/cache/redis"
)

type Config struct {
	MaxRequestsPerWindow int
	WindowDuration       time.Duration
	Logger               *zap.Logger
}

type RateLimiter struct {
	cache  *redis.Client
	max    int64
	window time.Duration
	logger *zap.Logger
}

func New(cache *redis.Client, cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerWindow == 0 {
		cfg.MaxRequestsPerWindow = 60
	}
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &RateLimiter{
		cache:  cache,
		max:    int64(cfg.MaxRequestsPerWindow),
		window: cfg.WindowDuration,
		logger: cfg.Logger,
	}
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if orgID := c.Get("X-Organization-ID"); orgID != "" {
			key = orgID
		}

		count, err := rl.cache.IncrWindow(c.Context(), "ratelimit:"+key, rl.window)
		if err != nil {
			// Fail open: a cache outage should not take the API down.
			rl.logger.Warn("Rate limit counter unavailable", zap.Error(err))
			return c.Next()
		}

		if count > rl.max {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Path()),
				zap.Int64("count", count),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}
