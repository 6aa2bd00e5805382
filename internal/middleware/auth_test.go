package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/cms-auth/internal/auth"
	"github.com/quillpress/cms-auth/internal/store"
)

type authHarness struct {
	app    *fiber.App
	store  *store.MemoryStore
	issuer *auth.TokenIssuer
	now    time.Time
}

func newAuthHarness(t *testing.T, resolver IdentityResolver) *authHarness {
	t.Helper()

	key, err := auth.NewHMACKey([]byte("middleware-test-secret"))
	require.NoError(t, err)

	h := &authHarness{store: store.NewMemoryStore(), now: time.Now()}
	opts := auth.TokenOptions{TTL: time.Hour, Issuer: "cms-auth", Audience: "cms-api", Clock: func() time.Time { return h.now }}
	h.issuer = auth.NewTokenIssuer(key, opts)

	if resolver == nil {
		resolver = auth.NewIdentityResolver(h.store)
	}
	logger, _ := test.NewNullLogger()
	mw := NewAuthMiddleware(auth.NewTokenValidator(key, opts), resolver, logger)

	h.app = fiber.New()
	h.app.Get("/protected", mw.Authenticate(), func(c *fiber.Ctx) error {
		fromCtx, ok := auth.IdentityFromContext(c.UserContext())
		if !ok || fromCtx != GetIdentity(c) {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"user_id": GetUserID(c), "username": fromCtx.Username})
	})
	return h
}

func (h *authHarness) do(t *testing.T, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	req.Header.Set("X-Request-ID", "req-1")

	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (h *authHarness) tokenFor(t *testing.T, username string) (string, string) {
	t.Helper()
	user, err := h.store.CreateUser(context.Background(), username, "$2a$04$hash", "")
	require.NoError(t, err)
	issued, err := h.issuer.Issue(user.UserID, user.Username)
	require.NoError(t, err)
	return issued.Token, user.UserID
}

func TestAuthenticate_ValidToken(t *testing.T) {
	h := newAuthHarness(t, nil)
	token, userID := h.tokenFor(t, "alice123")

	status, body := h.do(t, "Bearer "+token)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"user_id":"`+userID+`","username":"alice123"}`, body)

	status, _ = h.do(t, "bearer "+token)
	assert.Equal(t, fiber.StatusOK, status, "scheme is case-insensitive")
}

func TestAuthenticate_RejectionsShareOneBody(t *testing.T) {
	h := newAuthHarness(t, nil)
	token, userID := h.tokenFor(t, "alice123")

	tampered := []byte(token)
	tampered[len(tampered)-5] ^= 1

	expired, err := h.issuer.Issue(userID, "alice123")
	require.NoError(t, err)

	cases := map[string]func() string{
		"missing header": func() string { return "" },
		"basic scheme":   func() string { return "Basic YWxpY2U6c2VjcmV0" },
		"empty bearer":   func() string { return "Bearer " },
		"garbage":        func() string { return "Bearer not-a-token" },
		"tampered":       func() string { return "Bearer " + string(tampered) },
		"expired": func() string {
			h.now = h.now.Add(2 * time.Hour)
			return "Bearer " + expired.Token
		},
	}

	const want = `{"error":{"code":"UNAUTHENTICATED","message":"Authentication required","trace_id":"req-1"}}`
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			status, body := h.do(t, header())
			assert.Equal(t, fiber.StatusUnauthorized, status)
			assert.JSONEq(t, want, body)
		})
	}
}

func TestAuthenticate_DeletedUser(t *testing.T) {
	h := newAuthHarness(t, nil)
	token, userID := h.tokenFor(t, "alice123")

	require.NoError(t, h.store.DeleteUser(context.Background(), userID))

	status, body := h.do(t, "Bearer "+token)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body, "UNAUTHENTICATED")
}

type brokenResolver struct{}

func (brokenResolver) Resolve(context.Context, string) (*auth.Identity, error) {
	return nil, errors.New("dynamodb throttled")
}

func TestAuthenticate_ResolverFailureIsServerError(t *testing.T) {
	h := newAuthHarness(t, brokenResolver{})
	issued, err := h.issuer.Issue("user-1", "alice123")
	require.NoError(t, err)

	status, body := h.do(t, "Bearer "+issued.Token)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Contains(t, body, "INTERNAL_ERROR")
	assert.NotContains(t, body, "dynamodb")
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("  Bearer   abc  "))
	assert.Equal(t, "", bearerToken("Bearer"))
	assert.Equal(t, "", bearerToken("Token abc"))
	assert.Equal(t, "", bearerToken(""))
}
