package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/auth"
	"github.com/quillpress/cms-auth/internal/metrics"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

const (
	localIdentity = "identity"
	localUserID   = "user_id"

	unauthenticatedMessage = "Authentication required"
)

// TokenValidator is satisfied by *auth.TokenValidator
type TokenValidator interface {
	Validate(raw string) auth.TokenState
}

// IdentityResolver is satisfied by *auth.IdentityResolver
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (*auth.Identity, error)
}

type AuthMiddleware struct {
	validator TokenValidator
	resolver  IdentityResolver
	logger    *logrus.Logger
}

func NewAuthMiddleware(validator TokenValidator, resolver IdentityResolver, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		resolver:  resolver,
		logger:    logger,
	}
}

// Authenticate gates a route on a valid bearer token whose subject still
// exists. Every rejection produces the same 401 body; the reason is only
// logged.
func (a *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := a.validator.Validate(bearerToken(c.Get(fiber.HeaderAuthorization)))
		metrics.RecordTokenValidation(state.Status.String())

		if !state.Valid() {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Path(),
				"reason": state.Status.String(),
			}).WithError(state.Err).Debug("Token rejected")
			return a.unauthorizedError(c)
		}

		identity, err := a.resolver.Resolve(c.UserContext(), state.Claims.Subject)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				a.logger.WithField("user_id", state.Claims.Subject).Info("Token subject no longer exists")
				return a.unauthorizedError(c)
			}
			a.logger.WithError(err).WithField("user_id", state.Claims.Subject).Error("Failed to resolve identity")
			appErr := apperrors.NewAppError(apperrors.CodeInternalError, "failed to resolve identity", err)
			return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(RequestID(c)))
		}

		c.Locals(localIdentity, identity)
		c.Locals(localUserID, identity.UserID)
		c.SetUserContext(auth.WithIdentity(c.UserContext(), identity))

		return c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value. Any
// other scheme yields an empty string.
func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// unauthorizedError returns a standardized unauthorized error response
func (a *AuthMiddleware) unauthorizedError(c *fiber.Ctx) error {
	appErr := apperrors.NewAppError(apperrors.CodeUnauthenticated, unauthenticatedMessage, nil)
	c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="cms"`)
	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(RequestID(c)))
}

// GetIdentity returns the identity attached by Authenticate
func GetIdentity(c *fiber.Ctx) *auth.Identity {
	if id, ok := c.Locals(localIdentity).(*auth.Identity); ok {
		return id
	}
	return nil
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals(localUserID).(string); ok {
		return userID
	}
	return ""
}

// RequestID returns the id assigned by the requestid middleware, falling
// back to the inbound header.
func RequestID(c *fiber.Ctx) string {
	if id := c.GetRespHeader(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
