// Package auth guards the admin API with a single operator account and
// short lived bearer tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront-promo/internal/common"
)

const defaultTokenTTL = 8 * time.Hour

// dummyHash keeps unknown emails on the same slow path as wrong passwords.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=2$c29tZXNhbHRzb21lc2FsdA$WlN0g2y5vOWuq9zD9NTuqlgDs8hPnkcY5+0rVdEQ4Gk"

const msgInvalidToken = "invalid token"

var errInvalidCredentials = common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)

// Service issues and verifies admin access tokens.
type Service struct {
	secret     []byte
	tokenTTL   time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
	adminEmail string
	adminHash  string
	denylist   Denylist
}

// Config configures the auth service.
type Config struct {
	Secret            string
	TokenTTL          time.Duration
	Issuer            string
	Audience          string
	ClockSkew         time.Duration
	AdminEmail        string
	AdminPasswordHash string
	Denylist          Denylist
}

// Session describes an issued access token.
type Session struct {
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "storefront-promo"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "storefront-admin"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
		signer:   jwa.HS256,
		validator: TokenValidator{
			Issuer:         issuer,
			Audience:       audience,
			ClockSkew:      clockSkew,
			Algorithm:      jwa.HS256,
			Subject:        strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
			MaxAge:         tokenTTL,
			RequireTokenID: true,
		},
		issuer:     issuer,
		audience:   audience,
		clockSkew:  clockSkew,
		adminEmail: strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		adminHash:  strings.TrimSpace(cfg.AdminPasswordHash),
		denylist:   cfg.Denylist,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies the admin credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, errInvalidCredentials
	}
	if s.adminEmail == "" || s.adminHash == "" {
		return Session{}, common.NewAppError("AUTH_DISABLED", "admin login is not configured", http.StatusServiceUnavailable, nil)
	}

	hash := s.adminHash
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.adminEmail)) == 1
	if !emailOK {
		hash = dummyHash
	}
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return Session{}, fmt.Errorf("auth: compare password: %w", err)
	}
	if !match || !emailOK {
		return Session{}, errInvalidCredentials
	}

	token, expiresAt, err := s.signAccessToken(email)
	if err != nil {
		return Session{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Session{Email: email, AccessToken: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes the token described by p until it expires.
func (s *Service) Logout(ctx context.Context, p common.Principal) error {
	if s.denylist == nil {
		return errors.New("auth: denylist not configured")
	}
	ttl := p.ExpiresAt.Sub(s.now()) + s.clockSkew
	return s.denylist.Revoke(ctx, p.TokenID, ttl)
}

// ParseAccessToken validates an access token and returns its principal.
func (s *Service) ParseAccessToken(ctx context.Context, token string) (common.Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", msgInvalidToken, http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", msgInvalidToken, http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", msgInvalidToken, http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return common.Principal{}, common.NewAppError("UNAUTHORIZED", msgInvalidToken, http.StatusUnauthorized, err)
	}
	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, parsed.JwtID())
		if err != nil {
			return common.Principal{}, fmt.Errorf("auth: check denylist: %w", err)
		}
		if revoked {
			return common.Principal{}, common.NewAppError("UNAUTHORIZED", "token revoked", http.StatusUnauthorized, nil)
		}
	}
	return common.Principal{
		Subject:   parsed.Subject(),
		TokenID:   parsed.JwtID(),
		ExpiresAt: parsed.Expiration(),
	}, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(subject string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	token, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(subject).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
