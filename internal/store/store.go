// Package store holds the durable username → password hash records.
package store

import (
	"context"
	"errors"

	"github.com/quillpress/cms-auth/internal/models"
)

var (
	// ErrNotFound is returned when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
)

// CredentialStore persists users. CreateUser must reject a taken username
// atomically: two concurrent registrations of the same name yield exactly
// one user and one ErrDuplicateUsername.
type CredentialStore interface {
	CreateUser(ctx context.Context, username, passwordHash, displayName string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
