package auth

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/quillpress/cms-auth/internal/store"
	"github.com/quillpress/cms-auth/internal/tracing"
)

// ErrUserNotFound means a valid token names a subject that no longer exists
var ErrUserNotFound = errors.New("token subject no longer exists")

// IdentityResolver maps a token subject to a live user record
type IdentityResolver struct {
	store store.CredentialStore
}

func NewIdentityResolver(s store.CredentialStore) *IdentityResolver {
	return &IdentityResolver{store: s}
}

// Resolve looks the subject up on every call; identities are never cached.
func (r *IdentityResolver) Resolve(ctx context.Context, userID string) (*Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.resolve_identity")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	user, err := r.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	return &Identity{
		UserID:      user.UserID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
	}, nil
}
