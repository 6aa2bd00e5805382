package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/cms-auth/internal/config"
)

func pkcs8PEM(t *testing.T, key interface{}) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestNewHMACKey(t *testing.T) {
	key, err := NewHMACKey([]byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, "HS256", key.Algorithm())
	assert.Empty(t, key.KeyID())

	set, err := key.JWKS()
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())

	_, err = NewHMACKey(nil)
	assert.Error(t, err)
}

func TestParsePrivateKeyPEM_ECDSA(t *testing.T) {
	tests := []struct {
		curve elliptic.Curve
		alg   string
	}{
		{elliptic.P256(), "ES256"},
		{elliptic.P384(), "ES384"},
	}

	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			priv, err := ecdsa.GenerateKey(tt.curve, rand.Reader)
			require.NoError(t, err)

			key, err := ParsePrivateKeyPEM(pkcs8PEM(t, priv))
			require.NoError(t, err)
			assert.Equal(t, tt.alg, key.Algorithm())
			assert.NotEmpty(t, key.KeyID())

			clock := &fakeClock{now: testEpoch}
			issuer, validator := newTestTokens(t, key, clock)
			issued, err := issuer.Issue("user-1", "alice123")
			require.NoError(t, err)

			parsed, _, err := jwt.NewParser().ParseUnverified(issued.Token, &Claims{})
			require.NoError(t, err)
			assert.Equal(t, key.KeyID(), parsed.Header["kid"])
			assert.Equal(t, tt.alg, parsed.Header["alg"])

			assert.Equal(t, TokenValid, validator.Validate(issued.Token).Status)
		})
	}
}

func TestParsePrivateKeyPEM_RSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := ParsePrivateKeyPEM(pkcs8PEM(t, priv))
	require.NoError(t, err)
	assert.Equal(t, "RS256", key.Algorithm())

	set, err := key.JWKS()
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	published, ok := set.Key(0)
	require.True(t, ok)
	assert.Equal(t, key.KeyID(), published.KeyID())
	assert.Equal(t, "sig", published.KeyUsage())

	var raw interface{}
	require.NoError(t, published.Raw(&raw))
	pub, ok := raw.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 0, priv.PublicKey.N.Cmp(pub.N))
}

func TestParsePrivateKeyPEM_Rejects(t *testing.T) {
	_, err := ParsePrivateKeyPEM([]byte("not a pem"))
	assert.Error(t, err)

	priv, err := ecdsa.GenerateKey(elliptic.P224(), rand.Reader)
	require.NoError(t, err)
	_, err = ParsePrivateKeyPEM(pkcs8PEM(t, priv))
	assert.Error(t, err)
}

func TestTokens_KeyMismatchAcrossAlgorithms(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecKey, err := ParsePrivateKeyPEM(pkcs8PEM(t, priv))
	require.NoError(t, err)

	clock := &fakeClock{now: testEpoch}
	issuer, _ := newTestTokens(t, newTestKey(t), clock)
	_, validator := newTestTokens(t, ecKey, clock)

	issued, err := issuer.Issue("user-1", "alice123")
	require.NoError(t, err)

	assert.Equal(t, TokenSignatureInvalid, validator.Validate(issued.Token).Status)
}

func TestLoadSigningKey(t *testing.T) {
	t.Run("plain secret", func(t *testing.T) {
		key, err := LoadSigningKey(&config.JWTConfig{Secret: "s3cret", TTL: time.Hour}, nil)
		require.NoError(t, err)
		assert.Equal(t, "HS256", key.Algorithm())
	})

	t.Run("secret from lookup", func(t *testing.T) {
		var asked string
		lookup := func(name string) (string, error) {
			asked = name
			return "from-secrets-manager", nil
		}

		key, err := LoadSigningKey(&config.JWTConfig{SecretName: "cms/jwt"}, lookup)
		require.NoError(t, err)
		assert.Equal(t, "cms/jwt", asked)
		assert.Equal(t, []byte("from-secrets-manager"), key.signKey)
	})

	t.Run("lookup failure", func(t *testing.T) {
		lookup := func(string) (string, error) { return "", errors.New("access denied") }
		_, err := LoadSigningKey(&config.JWTConfig{SecretName: "cms/jwt"}, lookup)
		assert.Error(t, err)
	})

	t.Run("key file wins", func(t *testing.T) {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, pkcs8PEM(t, priv), 0o600))

		key, err := LoadSigningKey(&config.JWTConfig{Secret: "ignored", PrivateKeyFile: path}, nil)
		require.NoError(t, err)
		assert.Equal(t, "ES256", key.Algorithm())
	})

	t.Run("missing key file", func(t *testing.T) {
		_, err := LoadSigningKey(&config.JWTConfig{PrivateKeyFile: "/nonexistent/key.pem"}, nil)
		assert.Error(t, err)
	})
}
