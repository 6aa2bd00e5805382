package middleware

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/config"
)

// Manager holds all middleware instances
type Manager struct {
	Auth        *AuthMiddleware
	RateLimit   *RateLimitMiddleware
	ErrorLogger *ErrorLoggerMiddleware
	RedisClient redis.UniversalClient
	Config      *config.Config
	Logger      *logrus.Logger
}

// NewManager wires the middleware. Redis is optional: when it is disabled
// or unreachable at startup the rate limiter lets everything through.
func NewManager(cfg *config.Config, validator TokenValidator, resolver IdentityResolver, lookup SecretLookup, logger *logrus.Logger) *Manager {
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := NewRedisUniversalClient(&cfg.Redis, cfg.AWS.SecretName, lookup, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, rate limiting disabled")
		} else {
			redisClient = client
		}
	}

	return &Manager{
		Auth:        NewAuthMiddleware(validator, resolver, logger),
		RateLimit:   NewRateLimitMiddleware(&cfg.RateLimit, redisClient, logger),
		ErrorLogger: NewErrorLoggerMiddleware(logger),
		RedisClient: redisClient,
		Config:      cfg,
		Logger:      logger,
	}
}

// HealthChecks returns the readiness probes of the middleware dependencies
func (m *Manager) HealthChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if m.RedisClient != nil {
		checks["redis"] = RedisHealthCheck(m.RedisClient, m.Logger)
	}
	return checks
}

// Close closes all middleware resources
func (m *Manager) Close() error {
	if m.RedisClient != nil {
		return m.RedisClient.Close()
	}
	return nil
}
