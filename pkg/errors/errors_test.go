package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewAppError(CodeValidationFailed, "x", nil).HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, NewAppError(CodeInvalidCredentials, "x", nil).HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, NewAppError(CodeUnauthenticated, "x", nil).HTTPStatus())
	assert.Equal(t, http.StatusConflict, NewAppError(CodeDuplicateUsername, "x", nil).HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, NewAppError("SOMETHING_ELSE", "x", nil).HTTPStatus())
}

func TestAppError_ToErrorResponseHidesInternalDetail(t *testing.T) {
	cause := errors.New("dynamodb: connection reset by peer")
	appErr := NewAppError(CodeInternalError, "failed to create user", cause)

	resp := appErr.ToErrorResponse("req-1")

	assert.Equal(t, CodeInternalError, resp.Error.Code)
	assert.Equal(t, "Internal server error", resp.Error.Message)
	assert.Equal(t, "req-1", resp.Error.TraceID)
	assert.NotContains(t, resp.Error.Message, "dynamodb")
}

func TestNewValidationError_CarriesDetails(t *testing.T) {
	appErr := NewValidationError([]FieldError{{Field: "username", Message: "Username min length is 3"}})

	resp := appErr.ToErrorResponse("")

	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "username", resp.Error.Details[0].Field)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ignored"))

	wrapped := WrapError(errors.New("boom"), "hash failed")
	appErr := AsAppError(wrapped)
	assert.Equal(t, CodeInternalError, appErr.Code)

	dup := NewAppError(CodeDuplicateUsername, "Username already exists", nil)
	rewrapped := AsAppError(WrapError(dup, "register"))
	assert.Equal(t, CodeDuplicateUsername, rewrapped.Code)
	assert.True(t, errors.Is(rewrapped, dup))
}
