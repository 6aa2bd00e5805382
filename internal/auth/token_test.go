package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestKey(t *testing.T) *SigningKey {
	t.Helper()
	key, err := NewHMACKey([]byte("test-signing-secret"))
	require.NoError(t, err)
	return key
}

func newTestTokens(t *testing.T, key *SigningKey, clock *fakeClock) (*TokenIssuer, *TokenValidator) {
	t.Helper()
	opts := TokenOptions{
		TTL:      time.Hour,
		Issuer:   "cms-auth",
		Audience: "cms-api",
		Clock:    clock.Now,
	}
	return NewTokenIssuer(key, opts), NewTokenValidator(key, opts)
}

func TestTokenStatus_String(t *testing.T) {
	assert.Equal(t, "missing", TokenMissing.String())
	assert.Equal(t, "malformed", TokenMalformed.String())
	assert.Equal(t, "signature_invalid", TokenSignatureInvalid.String())
	assert.Equal(t, "expired", TokenExpired.String())
	assert.Equal(t, "valid", TokenValid.String())
	assert.Equal(t, "unknown", TokenStatus(42).String())
}

func TestIssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	issuer, validator := newTestTokens(t, newTestKey(t), clock)

	issued, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(time.Hour), issued.ExpiresAt)
	assert.Equal(t, time.Hour, issued.ExpiresIn)

	state := validator.Validate(issued.Token)
	require.Equal(t, TokenValid, state.Status, "err: %v", state.Err)
	require.True(t, state.Valid())
	assert.Equal(t, "user-1", state.Claims.Subject)
	assert.Equal(t, "alice123", state.Claims.Username)
	assert.Equal(t, "cms-auth", state.Claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"cms-api"}, state.Claims.Audience)
	assert.NotEmpty(t, state.Claims.ID)
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	issuer, _ := newTestTokens(t, newTestKey(t), clock)

	first, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)
	second, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestIssue_RequiresSubject(t *testing.T) {
	issuer, _ := newTestTokens(t, newTestKey(t), &fakeClock{now: testEpoch})

	_, err := issuer.Issue("", "alice123")
	assert.Error(t, err)
}

func TestValidate_ExpiryBoundary(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	issuer, validator := newTestTokens(t, newTestKey(t), clock)

	issued, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)

	clock.now = issued.ExpiresAt.Add(-time.Nanosecond)
	assert.Equal(t, TokenValid, validator.Validate(issued.Token).Status)

	clock.now = issued.ExpiresAt
	assert.Equal(t, TokenExpired, validator.Validate(issued.Token).Status)

	clock.now = issued.ExpiresAt.Add(time.Minute)
	state := validator.Validate(issued.Token)
	assert.Equal(t, TokenExpired, state.Status)
	assert.Nil(t, state.Claims)
	assert.False(t, state.Valid())
}

func TestValidate_Missing(t *testing.T) {
	_, validator := newTestTokens(t, newTestKey(t), &fakeClock{now: testEpoch})

	assert.Equal(t, TokenMissing, validator.Validate("").Status)
}

func TestValidate_Malformed(t *testing.T) {
	_, validator := newTestTokens(t, newTestKey(t), &fakeClock{now: testEpoch})

	for _, raw := range []string{
		"garbage",
		"a.b",
		"a..c",
		".b.c",
		"a.b.",
		"a.b.c.d",
	} {
		t.Run(raw, func(t *testing.T) {
			state := validator.Validate(raw)
			assert.Equal(t, TokenMalformed, state.Status)
			assert.Error(t, state.Err)
		})
	}
}

func TestValidate_EveryTamperIsRejected(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	issuer, validator := newTestTokens(t, newTestKey(t), clock)

	issued, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)

	dots := 0
	for i := 0; i < len(issued.Token); i++ {
		tampered := []byte(issued.Token)
		if tampered[i] == 'A' {
			tampered[i] = 'B'
		} else {
			tampered[i] = 'A'
		}

		state := validator.Validate(string(tampered))
		if issued.Token[i] == '.' {
			// Losing a separator breaks the three-segment shape.
			dots++
			assert.Equal(t, TokenMalformed, state.Status, "separator tamper at offset %d", i)
			continue
		}
		assert.Equal(t, TokenSignatureInvalid, state.Status, "tamper at offset %d", i)
	}
	assert.Equal(t, 2, dots)
}

func TestValidate_WrongKey(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	issuer, _ := newTestTokens(t, newTestKey(t), clock)

	otherKey, err := NewHMACKey([]byte("another-secret"))
	require.NoError(t, err)
	_, validator := newTestTokens(t, otherKey, clock)

	issued, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)

	assert.Equal(t, TokenSignatureInvalid, validator.Validate(issued.Token).Status)
}

func TestValidate_IgnoresHeaderAlgorithm(t *testing.T) {
	key := newTestKey(t)
	_, validator := newTestTokens(t, key, &fakeClock{now: testEpoch})

	claims := Claims{
		Username: "alice123",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "cms-auth",
			Audience:  jwt.ClaimStrings{"cms-api"},
			IssuedAt:  jwt.NewNumericDate(testEpoch),
			ExpiresAt: jwt.NewNumericDate(testEpoch.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(key.signKey)
	require.NoError(t, err)

	assert.Equal(t, TokenSignatureInvalid, validator.Validate(raw).Status)
}

func TestValidate_ClaimFailuresAreMalformed(t *testing.T) {
	key := newTestKey(t)
	_, validator := newTestTokens(t, key, &fakeClock{now: testEpoch})

	base := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "cms-auth",
			Audience:  jwt.ClaimStrings{"cms-api"},
			IssuedAt:  jwt.NewNumericDate(testEpoch),
			ExpiresAt: jwt.NewNumericDate(testEpoch.Add(time.Hour)),
		}
	}

	tests := []struct {
		name   string
		mutate func(*jwt.RegisteredClaims)
	}{
		{"no subject", func(c *jwt.RegisteredClaims) { c.Subject = "" }},
		{"no expiry", func(c *jwt.RegisteredClaims) { c.ExpiresAt = nil }},
		{"wrong issuer", func(c *jwt.RegisteredClaims) { c.Issuer = "someone-else" }},
		{"wrong audience", func(c *jwt.RegisteredClaims) { c.Audience = jwt.ClaimStrings{"billing"} }},
		{"issued in the future", func(c *jwt.RegisteredClaims) { c.IssuedAt = jwt.NewNumericDate(testEpoch.Add(time.Minute)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := base()
			tt.mutate(&rc)
			raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: "alice123", RegisteredClaims: rc}).
				SignedString(key.signKey)
			require.NoError(t, err)

			assert.Equal(t, TokenMalformed, validator.Validate(raw).Status)
		})
	}
}
