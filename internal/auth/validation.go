package auth

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/quillpress/cms-auth/internal/models"
	apperrors "github.com/quillpress/cms-auth/pkg/errors"
)

const maxDisplayNameLength = 64

// CredentialPolicy holds the length rules applied to credential input
type CredentialPolicy struct {
	UsernameMinLength int
	PasswordMinLength int
}

// DefaultCredentialPolicy matches the public registration form
func DefaultCredentialPolicy() CredentialPolicy {
	return CredentialPolicy{UsernameMinLength: 3, PasswordMinLength: 5}
}

// ValidateRegister checks a registration payload. Lengths are counted in
// runes except the password ceiling, which is bcrypt's byte limit.
func (p CredentialPolicy) ValidateRegister(req *models.RegisterRequest) error {
	usernameMsg := fmt.Sprintf("Username min length is %d", p.UsernameMinLength)
	passwordMsg := fmt.Sprintf("Password min length is %d", p.PasswordMinLength)

	err := validation.ValidateStruct(req,
		validation.Field(&req.Username,
			validation.Required.Error(usernameMsg),
			validation.RuneLength(p.UsernameMinLength, 0).Error(usernameMsg),
		),
		validation.Field(&req.Password,
			validation.Required.Error(passwordMsg),
			validation.RuneLength(p.PasswordMinLength, 0).Error(passwordMsg),
			validation.Length(0, MaxPasswordBytes).Error(fmt.Sprintf("Password max length is %d bytes", MaxPasswordBytes)),
		),
		validation.Field(&req.DisplayName,
			validation.RuneLength(0, maxDisplayNameLength).Error(fmt.Sprintf("Display name max length is %d", maxDisplayNameLength)),
		),
	)
	return toValidationError(err)
}

// ValidateLogin only requires both fields to be present; length rules are
// not applied so that a login never reveals the registration policy.
func (p CredentialPolicy) ValidateLogin(req *models.LoginRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Username, validation.Required.Error("Username is required")),
		validation.Field(&req.Password, validation.Required.Error("Password is required")),
	)
	return toValidationError(err)
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return apperrors.NewAppError(apperrors.CodeInternalError, "validation failed unexpectedly", err)
	}

	details := make([]apperrors.FieldError, 0, len(errs))
	for field, fieldErr := range errs {
		details = append(details, apperrors.FieldError{Field: field, Message: fieldErr.Error()})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })

	return apperrors.NewValidationError(details)
}
