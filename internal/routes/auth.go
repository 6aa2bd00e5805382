package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/quillpress/cms-auth/internal/auth"
	"github.com/quillpress/cms-auth/internal/middleware"
	"github.com/quillpress/cms-auth/internal/models"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

const tokenTypeBearer = "Bearer"

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *auth.Service
	key     *auth.SigningKey
	logger  *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, key *auth.SigningKey, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		key:     key,
		logger:  logger,
	}
}

// Register handles user registration
// @Summary User registration
// @Description Register a new author and return a session token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} errors.ErrorResponse "Invalid request"
// @Failure 409 {object} errors.ErrorResponse "Username already exists"
// @Failure 429 {object} errors.ErrorResponse "Too many requests"
// @Failure 500 {object} errors.ErrorResponse "Internal error"
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return h.invalidBody(c, err)
	}

	session, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toAuthResponse(session))
}

// Login handles user login
// @Summary User login
// @Description Verify credentials and return a session token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} errors.ErrorResponse "Invalid request"
// @Failure 401 {object} errors.ErrorResponse "Invalid credentials"
// @Failure 429 {object} errors.ErrorResponse "Too many requests"
// @Failure 500 {object} errors.ErrorResponse "Internal error"
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return h.invalidBody(c, err)
	}

	session, err := h.service.Login(c.UserContext(), req)
	if err != nil {
		return h.errorResponse(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":  session.User.UserID,
		"username": session.User.Username,
	}).Info("User logged in successfully")

	return c.JSON(toAuthResponse(session))
}

// Me returns the authenticated identity
// @Summary Current user
// @Description Return the id and username behind the bearer token
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.MeResponse
// @Failure 401 {object} errors.ErrorResponse "Unauthenticated"
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity := middleware.GetIdentity(c)
	if identity == nil {
		// Only reachable if the route was mounted without Authenticate.
		return h.errorResponse(c, apperrors.NewAppError(apperrors.CodeUnauthenticated, "Authentication required", nil))
	}

	return c.JSON(models.MeResponse{
		UserID:   identity.UserID,
		Username: identity.Username,
	})
}

// JWKS publishes the token verification keys
// @Summary JSON Web Key Set
// @Description Public keys for verifying session tokens; empty when tokens are HMAC signed
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Key set"
// @Router /.well-known/jwks.json [get]
func (h *AuthHandler) JWKS(c *fiber.Ctx) error {
	set, err := h.key.JWKS()
	if err != nil {
		return h.errorResponse(c, apperrors.NewAppError(apperrors.CodeInternalError, "failed to build key set", err))
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(set)
}

func toAuthResponse(s *auth.Session) models.AuthResponse {
	return models.AuthResponse{
		Token:       s.Token.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(s.Token.ExpiresIn.Seconds()),
		UserID:      s.User.UserID,
		Username:    s.User.Username,
		DisplayName: s.User.DisplayName,
	}
}

func (h *AuthHandler) invalidBody(c *fiber.Ctx, err error) error {
	return h.errorResponse(c, apperrors.NewAppError(apperrors.CodeBadRequest, "Invalid request body", err))
}

// errorResponse writes err in the standard envelope. Internal causes are
// logged here and never reach the client.
func (h *AuthHandler) errorResponse(c *fiber.Ctx, err error) error {
	appErr := apperrors.AsAppError(err)
	if appErr.Code == apperrors.CodeInternalError {
		h.logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}
	return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(middleware.RequestID(c)))
}
