package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	_ "github.com/quillpress/cms-auth/docs" // Swagger docs
	"github.com/quillpress/cms-auth/internal/auth"
	"github.com/quillpress/cms-auth/internal/config"
	"github.com/quillpress/cms-auth/internal/logging"
	"github.com/quillpress/cms-auth/internal/metrics"
	"github.com/quillpress/cms-auth/internal/middleware"
	"github.com/quillpress/cms-auth/internal/routes"
	"github.com/quillpress/cms-auth/internal/secrets"
	"github.com/quillpress/cms-auth/internal/store"
	"github.com/quillpress/cms-auth/internal/tracing"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

// @title CMS Auth API
// @version 1.0
// @description Registration, login and bearer-token session protection for the CMS

// @host localhost:8000
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg)

	if err := metrics.Init(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize metrics")
	}

	tracingShutdown, err := tracing.Init(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to setup tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracing")
		}
	}()

	lookup := secretLookup(cfg, logger)

	signingKey, err := auth.LoadSigningKey(&cfg.JWT, lookup)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load token signing key")
	}
	if cfg.JWT.PrivateKeyFile == "" && cfg.JWT.SecretName == "" && cfg.JWT.Secret == config.DefaultJWTSecret {
		logger.Warn("Using the default JWT secret; set JWT_SECRET before deploying")
	}

	credentialStore, err := initializeStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize credential store")
	}

	hasher, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize password hasher")
	}

	tokenOpts := auth.TokenOptions{
		TTL:      cfg.JWT.TTL,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}
	policy := auth.CredentialPolicy{
		UsernameMinLength: cfg.Auth.UsernameMinLength,
		PasswordMinLength: cfg.Auth.PasswordMinLength,
	}

	authService := auth.NewService(credentialStore, hasher, auth.NewTokenIssuer(signingKey, tokenOpts), policy, logger)

	middlewareManager := middleware.NewManager(cfg,
		auth.NewTokenValidator(signingKey, tokenOpts),
		auth.NewIdentityResolver(credentialStore),
		middleware.SecretLookup(lookup),
		logger,
	)
	defer middlewareManager.Close()

	app := fiber.New(fiber.Config{
		AppName:      "CMS Auth",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    64 * 1024,
		ErrorHandler: errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowMethods: "GET,POST,HEAD,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		MaxAge:       86400,
	}))
	app.Use(otelfiber.Middleware())

	if cfg.Server.PprofEnabled {
		app.Use(pprof.New())
	}

	checks := middlewareManager.HealthChecks()
	checks["store"] = credentialStore.Ping

	routes.Setup(app, cfg, logger, middlewareManager,
		routes.NewAuthHandler(authService, signingKey, logger),
		checks,
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Gracefully shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":          cfg.Server.Port,
		"store_backend": cfg.Store.Backend,
		"signing_alg":   signingKey.Algorithm(),
	}).Info("Starting CMS auth server")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}

// secretLookup returns a Secrets Manager backed lookup, or nil when no
// configured secret needs one.
func secretLookup(cfg *config.Config, logger *logrus.Logger) auth.SecretLookup {
	if cfg.JWT.SecretName == "" && !cfg.Redis.PasswordFromSecrets {
		return nil
	}

	client, err := secrets.New(&cfg.AWS, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Secrets Manager client")
	}
	return client.GetSecretString
}

func initializeStore(cfg *config.Config, logger *logrus.Logger) (store.CredentialStore, error) {
	switch cfg.Store.Backend {
	case "dynamodb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := store.NewDynamoDBClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoDBStore(client, cfg.DynamoDB.UsersTableName, logger), nil
	case "memory":
		logger.Warn("Using in-memory credential store; users are lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"status": code,
		}).Error("Request error")

		appErr := apperrors.NewAppError(apperrors.CodeInternalError, "Internal server error", err)
		switch {
		case code == fiber.StatusNotFound:
			appErr = apperrors.NewAppError(apperrors.CodeNotFound, "The requested resource was not found", err)
		case code < 500:
			appErr = apperrors.NewAppError(apperrors.CodeBadRequest, err.Error(), err)
		}

		resp := appErr.ToErrorResponse(middleware.RequestID(c))
		return c.Status(code).JSON(resp)
	}
}
