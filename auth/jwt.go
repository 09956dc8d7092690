package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// TokenService signs and verifies JWTs carrying claims of type T, usually
// a struct embedding jwt.RegisteredClaims.
type TokenService[T gojwt.Claims] struct {
	cfg       JWTConfig
	method    gojwt.SigningMethod
	signKey   any
	verifyKey any
	newClaims func() T
	now       func() time.Time
}

// NewTokenService creates a service from cfg. newClaims returns an empty
// claims value to parse into.
func NewTokenService[T gojwt.Claims](cfg JWTConfig, newClaims func() T) (*TokenService[T], error) {
	cfg.ApplyDefaults()
	method := gojwt.GetSigningMethod(cfg.Method)
	if method == nil {
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.Method)
	}
	s := &TokenService[T]{cfg: cfg, method: method, newClaims: newClaims, now: time.Now}
	if err := s.loadKeys(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TokenService[T]) loadKeys() error {
	switch {
	case strings.HasPrefix(s.cfg.Method, "HS"):
		if s.cfg.Secret == "" {
			return errors.New("jwt: secret is required for HMAC signing methods")
		}
		s.signKey = []byte(s.cfg.Secret)
		s.verifyKey = s.signKey
		return nil
	case s.cfg.PublicKeyFile == "":
		return fmt.Errorf("jwt: publicKeyFile is required for %s", s.cfg.Method)
	}

	rsa := strings.HasPrefix(s.cfg.Method, "RS")
	pub, err := os.ReadFile(s.cfg.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("jwt: read public key: %w", err)
	}
	if rsa {
		s.verifyKey, err = gojwt.ParseRSAPublicKeyFromPEM(pub)
	} else {
		s.verifyKey, err = gojwt.ParseECPublicKeyFromPEM(pub)
	}
	if err != nil {
		return fmt.Errorf("jwt: parse public key: %w", err)
	}

	if s.cfg.PrivateKeyFile == "" {
		return nil
	}
	priv, err := os.ReadFile(s.cfg.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("jwt: read private key: %w", err)
	}
	if rsa {
		s.signKey, err = gojwt.ParseRSAPrivateKeyFromPEM(priv)
	} else {
		s.signKey, err = gojwt.ParseECPrivateKeyFromPEM(priv)
	}
	if err != nil {
		return fmt.Errorf("jwt: parse private key: %w", err)
	}
	return nil
}

// Sign returns the signed token for claims as they are.
func (s *TokenService[T]) Sign(claims T) (string, error) {
	if s.signKey == nil {
		return "", fmt.Errorf("jwt: no signing key configured for %s", s.cfg.Method)
	}
	signed, err := gojwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Issue sets issuer, audience, issued-at and expiry on registered, which
// must be the registered claims embedded in claims, and signs claims:
//
//	c := &Claims{Roles: roles}
//	c.Subject = user.Name
//	token, err := svc.Issue(c, &c.RegisteredClaims)
func (s *TokenService[T]) Issue(claims T, registered *gojwt.RegisteredClaims) (string, error) {
	now := s.now()
	registered.IssuedAt = gojwt.NewNumericDate(now)
	registered.ExpiresAt = gojwt.NewNumericDate(now.Add(s.cfg.TokenTTL.Std()))
	if s.cfg.Issuer != "" {
		registered.Issuer = s.cfg.Issuer
	}
	if s.cfg.Audience != "" {
		registered.Audience = gojwt.ClaimStrings{s.cfg.Audience}
	}
	return s.Sign(claims)
}

// Parse verifies token and returns its claims.
func (s *TokenService[T]) Parse(token string) (T, error) {
	var zero T
	parsed, err := gojwt.ParseWithClaims(token, s.newClaims(), s.keyFunc, s.parserOptions()...)
	if err != nil {
		return zero, fmt.Errorf("jwt: parse token: %w", err)
	}
	claims, ok := parsed.Claims.(T)
	if !ok || !parsed.Valid {
		return zero, errors.New("jwt: invalid token")
	}
	return claims, nil
}

func (s *TokenService[T]) keyFunc(token *gojwt.Token) (any, error) {
	if token.Method.Alg() != s.method.Alg() {
		return nil, fmt.Errorf("jwt: unexpected signing method %s", token.Method.Alg())
	}
	return s.verifyKey, nil
}

func (s *TokenService[T]) parserOptions() []gojwt.ParserOption {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{s.method.Alg()}),
		gojwt.WithTimeFunc(s.now),
		gojwt.WithExpirationRequired(),
	}
	if s.cfg.Leeway > 0 {
		opts = append(opts, gojwt.WithLeeway(s.cfg.Leeway.Std()))
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(s.cfg.Audience))
	}
	return opts
}

// TokenAuthenticator authenticates bearer tokens issued by s. principal maps
// verified claims to the application's principal; tokens that fail
// verification are rejected without an error.
func TokenAuthenticator[T gojwt.Claims, P any](s *TokenService[T], principal func(ctx context.Context, claims T) (P, bool, error)) Authenticator[string, P] {
	return AuthenticatorFunc[string, P](func(ctx context.Context, token string) (P, bool, error) {
		claims, err := s.Parse(token)
		if err != nil {
			var zero P
			return zero, false, nil
		}
		return principal(ctx, claims)
	})
}
