package auth

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quillpress/cms-auth/internal/logging"
	"github.com/quillpress/cms-auth/internal/metrics"
	"github.com/quillpress/cms-auth/internal/models"
	"github.com/quillpress/cms-auth/internal/store"
	"github.com/quillpress/cms-auth/internal/tracing"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

const invalidCredentialsMessage = "Invalid username or password"

// Session is the result of a successful register or login
type Session struct {
	Token *IssuedToken
	User  *models.User
}

// Service orchestrates registration and login
type Service struct {
	store  store.CredentialStore
	hasher PasswordHasher
	issuer *TokenIssuer
	policy CredentialPolicy
	logger *logrus.Logger
}

func NewService(s store.CredentialStore, hasher PasswordHasher, issuer *TokenIssuer, policy CredentialPolicy, logger *logrus.Logger) *Service {
	return &Service{
		store:  s,
		hasher: hasher,
		issuer: issuer,
		policy: policy,
		logger: logger,
	}
}

// Register creates a user and signs them in
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.register")
	defer span.End()

	if err := s.policy.ValidateRegister(&req); err != nil {
		metrics.RecordAuthOperation("register", "invalid")
		return nil, err
	}
	span.SetAttributes(attribute.String("user.name", req.Username))

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordAuthOperation("register", "error")
		s.logger.WithError(err).Error("Failed to hash password")
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "failed to hash password", err)
	}

	user, err := s.store.CreateUser(ctx, req.Username, hash, req.DisplayName)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			metrics.RecordAuthOperation("register", "duplicate")
			return nil, apperrors.NewAppError(apperrors.CodeDuplicateUsername, "Username already exists", err)
		}
		tracing.RecordError(span, err)
		metrics.RecordAuthOperation("register", "error")
		s.logger.WithError(err).WithField("username", req.Username).Error("Failed to create user")
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "failed to create user", err)
	}

	token, err := s.issuer.Issue(user.UserID, user.Username)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordAuthOperation("register", "error")
		logging.WithUserID(s.logger, user.UserID).WithError(err).Error("Failed to issue token after registration")
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "failed to issue token", err)
	}

	metrics.RecordAuthOperation("register", "success")
	s.logger.WithFields(logrus.Fields{
		"user_id":  user.UserID,
		"username": user.Username,
	}).Info("User registered")

	return &Session{Token: token, User: user}, nil
}

// Login verifies credentials and issues a token. Unknown usernames and
// wrong passwords produce the same error and take comparable time.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.login")
	defer span.End()

	if err := s.policy.ValidateLogin(&req); err != nil {
		metrics.RecordAuthOperation("login", "invalid")
		return nil, err
	}

	user, err := s.store.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.VerifyMissing(req.Password)
			metrics.RecordAuthOperation("login", "rejected")
			return nil, apperrors.NewAppError(apperrors.CodeInvalidCredentials, invalidCredentialsMessage, nil)
		}
		tracing.RecordError(span, err)
		metrics.RecordAuthOperation("login", "error")
		s.logger.WithError(err).Error("Failed to look up user")
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "failed to look up user", err)
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordAuthOperation("login", "error")
		logging.WithUserID(s.logger, user.UserID).WithError(err).Error("Stored password hash is unreadable")
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "failed to verify password", err)
	}
	if !ok {
		metrics.RecordAuthOperation("login", "rejected")
		logging.WithUserID(s.logger, user.UserID).Debug("Password mismatch")
		return nil, apperrors.NewAppError(apperrors.CodeInvalidCredentials, invalidCredentialsMessage, nil)
	}

	token, err := s.issuer.Issue(user.UserID, user.Username)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordAuthOperation("login", "error")
		logging.WithUserID(s.logger, user.UserID).WithError(err).Error("Failed to issue token")
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "failed to issue token", err)
	}

	span.SetAttributes(attribute.String("user.id", user.UserID))
	metrics.RecordAuthOperation("login", "success")

	return &Session{Token: token, User: user}, nil
}
