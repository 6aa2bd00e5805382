package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/quillpress/cms-auth/internal/config"
)

// SigningKey is the process-wide token key. It is built once at startup
// and only read afterwards.
type SigningKey struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	keyID     string
	public    jwk.Key // nil for symmetric keys
}

// SecretLookup fetches a named secret, e.g. from AWS Secrets Manager.
type SecretLookup func(name string) (string, error)

// NewHMACKey builds an HS256 key from a shared secret.
func NewHMACKey(secret []byte) (*SigningKey, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret cannot be empty")
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	return &SigningKey{
		method:    jwt.SigningMethodHS256,
		signKey:   key,
		verifyKey: key,
	}, nil
}

// ParsePrivateKeyPEM builds an RS256/ES256/ES384 key from a PEM encoded
// private key. The public half is published through JWKS.
func ParsePrivateKeyPEM(data []byte) (*SigningKey, error) {
	key, err := jwk.ParseKey(data, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PEM key: %w", err)
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("failed to get raw key: %w", err)
	}

	var (
		method    jwt.SigningMethod
		alg       jwa.SignatureAlgorithm
		verifyKey interface{}
	)
	switch k := raw.(type) {
	case *rsa.PrivateKey:
		method, alg, verifyKey = jwt.SigningMethodRS256, jwa.RS256, &k.PublicKey
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().Name {
		case "P-256":
			method, alg = jwt.SigningMethodES256, jwa.ES256
		case "P-384":
			method, alg = jwt.SigningMethodES384, jwa.ES384
		default:
			return nil, fmt.Errorf("unsupported EC curve %s", k.Curve.Params().Name)
		}
		verifyKey = &k.PublicKey
	default:
		return nil, fmt.Errorf("unsupported private key type %T", raw)
	}

	public, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	if err := jwk.AssignKeyID(public); err != nil {
		return nil, fmt.Errorf("failed to assign key id: %w", err)
	}
	if err := public.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}
	if err := public.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	return &SigningKey{
		method:    method,
		signKey:   raw,
		verifyKey: verifyKey,
		keyID:     public.KeyID(),
		public:    public,
	}, nil
}

// LoadSigningKey resolves the signing key from configuration in order of
// preference: PEM key file, Secrets Manager secret, plain secret.
func LoadSigningKey(cfg *config.JWTConfig, lookup SecretLookup) (*SigningKey, error) {
	if cfg.PrivateKeyFile != "" {
		data, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		return ParsePrivateKeyPEM(data)
	}

	if cfg.SecretName != "" {
		if lookup == nil {
			return nil, errors.New("secret lookup is not configured")
		}
		secret, err := lookup(cfg.SecretName)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch signing secret: %w", err)
		}
		return NewHMACKey([]byte(secret))
	}

	return NewHMACKey([]byte(cfg.Secret))
}

// Algorithm returns the JWS algorithm name, e.g. "HS256".
func (k *SigningKey) Algorithm() string {
	return k.method.Alg()
}

// KeyID returns the key id stamped into token headers, empty for HMAC keys.
func (k *SigningKey) KeyID() string {
	return k.keyID
}

// JWKS returns the public key set. Symmetric keys publish an empty set.
func (k *SigningKey) JWKS() (jwk.Set, error) {
	set := jwk.NewSet()
	if k.public == nil {
		return set, nil
	}
	if err := set.AddKey(k.public); err != nil {
		return nil, fmt.Errorf("failed to build key set: %w", err)
	}
	return set, nil
}
