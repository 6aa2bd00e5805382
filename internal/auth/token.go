package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by a session token
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenStatus is the outcome of validating a bearer token
type TokenStatus int

const (
	TokenMissing TokenStatus = iota
	TokenMalformed
	TokenSignatureInvalid
	TokenExpired
	TokenValid
)

func (s TokenStatus) String() string {
	switch s {
	case TokenMissing:
		return "missing"
	case TokenMalformed:
		return "malformed"
	case TokenSignatureInvalid:
		return "signature_invalid"
	case TokenExpired:
		return "expired"
	case TokenValid:
		return "valid"
	default:
		return "unknown"
	}
}

// TokenState is the result of Validate. Claims is set only when Status is
// TokenValid; Err carries the rejection detail for server-side logs.
type TokenState struct {
	Status TokenStatus
	Claims *Claims
	Err    error
}

// Valid reports whether the token may be trusted
func (s TokenState) Valid() bool {
	return s.Status == TokenValid && s.Claims != nil
}

// TokenOptions configures issuer and validator alike
type TokenOptions struct {
	TTL      time.Duration
	Issuer   string
	Audience string
	Clock    func() time.Time
}

func (o TokenOptions) clock() func() time.Time {
	if o.Clock != nil {
		return o.Clock
	}
	return time.Now
}

// IssuedToken is a freshly minted bearer token
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// TokenIssuer mints signed session tokens. It keeps no record of what it
// issued.
type TokenIssuer struct {
	key  *SigningKey
	opts TokenOptions
	now  func() time.Time
}

func NewTokenIssuer(key *SigningKey, opts TokenOptions) *TokenIssuer {
	return &TokenIssuer{key: key, opts: opts, now: opts.clock()}
}

// Issue signs a token for the given subject
func (i *TokenIssuer) Issue(userID, username string) (*IssuedToken, error) {
	if userID == "" {
		return nil, errors.New("cannot issue token without subject")
	}

	now := i.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.opts.TTL)),
			ID:        uuid.NewString(),
		},
	}
	if i.opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.opts.Audience}
	}

	token := jwt.NewWithClaims(i.key.method, claims)
	if i.key.keyID != "" {
		token.Header["kid"] = i.key.keyID
	}

	signed, err := token.SignedString(i.key.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &IssuedToken{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		ExpiresIn: i.opts.TTL,
	}, nil
}

// TokenValidator checks bearer tokens against the process signing key
type TokenValidator struct {
	key    *SigningKey
	parser *jwt.Parser
}

func NewTokenValidator(key *SigningKey, opts TokenOptions) *TokenValidator {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(opts.clock()),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	return &TokenValidator{
		key:    key,
		parser: jwt.NewParser(parserOpts...),
	}
}

// Validate walks the token through the rejection states in order:
// missing, malformed shape, signature, claims, expiry. The signature is
// checked with the configured method before anything in the token is
// decoded, so the header's alg is never trusted.
func (v *TokenValidator) Validate(raw string) TokenState {
	if raw == "" {
		return TokenState{Status: TokenMissing}
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TokenState{Status: TokenMalformed, Err: errors.New("token is not a three-segment JWS")}
	}

	sig, err := v.parser.DecodeSegment(parts[2])
	if err != nil {
		return TokenState{Status: TokenSignatureInvalid, Err: fmt.Errorf("undecodable signature: %w", err)}
	}
	if err := v.key.method.Verify(parts[0]+"."+parts[1], sig, v.key.verifyKey); err != nil {
		return TokenState{Status: TokenSignatureInvalid, Err: err}
	}

	claims := &Claims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.key.verifyKey, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenState{Status: TokenExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return TokenState{Status: TokenSignatureInvalid, Err: err}
	default:
		return TokenState{Status: TokenMalformed, Err: err}
	}

	if claims.Subject == "" {
		return TokenState{Status: TokenMalformed, Err: errors.New("token has no subject")}
	}

	return TokenState{Status: TokenValid, Claims: claims}
}
