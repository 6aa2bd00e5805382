package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/config"
	"github.com/quillpress/cms-auth/internal/logging"
	"github.com/quillpress/cms-auth/internal/metrics"
	"github.com/quillpress/cms-auth/internal/middleware"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

const serviceName = "cms-auth"

// Set at build time with -ldflags "-X .../internal/routes.commit=..."
var (
	commit    = "unknown"
	buildTime = "unknown"
)

// Setup configures all API routes
func Setup(app *fiber.App, cfg *config.Config, logger *logrus.Logger, middlewareManager *middleware.Manager, authHandler *AuthHandler, checks map[string]func(context.Context) error) {
	// Health check endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(checks, logger))
	app.Get("/version", versionHandler)

	app.Get(cfg.Observability.MetricsPath, metrics.PrometheusHandler())
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/.well-known/jwks.json", authHandler.JWKS)

	api := app.Group("/api")
	api.Use(metrics.HTTPMetricsMiddleware())
	api.Use(middlewareManager.ErrorLogger.Handle())

	// Credential endpoints are public and throttled per client
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", middlewareManager.RateLimit.Handle(), authHandler.Register)
	authRoutes.Post("/login", middlewareManager.RateLimit.Handle(), authHandler.Login)

	// Protected routes
	authRoutes.Get("/me", middlewareManager.Auth.Authenticate(), authHandler.Me)

	app.Use(notFoundHandler)
}

// healthCheck returns the health status of the service
// @Summary Health check
// @Description Check if the service is healthy
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Router /healthz [get]
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   serviceName,
	})
}

// readinessCheck runs every dependency probe
// @Summary Readiness check
// @Description Check the credential store and, when enabled, Redis
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Ready"
// @Failure 503 {object} map[string]interface{} "Not ready"
// @Router /readyz [get]
func readinessCheck(checks map[string]func(context.Context) error, logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		failed := make(map[string]string)
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WithError(err).WithField("dependency", name).Warn("Readiness check failed")
				failed[name] = "unavailable"
			}
		}

		if len(failed) > 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"failed":    failed,
				"timestamp": time.Now().UTC(),
			})
		}

		return c.JSON(fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	}
}

// versionHandler returns version information
// @Summary Version information
// @Description Get service version and build information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Version info"
// @Router /version [get]
func versionHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": serviceName,
		"version": logging.GetVersion(),
		"commit":  commit,
		"built":   buildTime,
	})
}

func notFoundHandler(c *fiber.Ctx) error {
	appErr := apperrors.NewAppError(apperrors.CodeNotFound, "The requested resource was not found", nil)
	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(middleware.RequestID(c)))
}
