package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	errTokenNil       = errors.New("auth: token is nil")
	errTokenAlgorithm = errors.New("auth: token algorithm not accepted")
	errTokenID        = errors.New("auth: token missing jti")
	errTokenSubject   = errors.New("auth: token subject is not the admin")
	errTokenIssuedAt  = errors.New("auth: token missing iat")
	errTokenTooOld    = errors.New("auth: token older than the session lifetime")
)

// TokenValidator checks admin access tokens after the signature has been
// verified.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
	// Subject is the admin email tokens must be issued to. Rotating
	// ADMIN_EMAIL invalidates every token issued to the previous account.
	Subject string
	// MaxAge bounds now - iat. Zero skips the check.
	MaxAge time.Duration
	// RequireTokenID rejects tokens logout could not revoke.
	RequireTokenID bool
}

// Validate returns nil when tok is an admin token that is usable at now.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errTokenNil
	}
	if algorithm == "" || (v.Algorithm != "" && algorithm != v.Algorithm) {
		return fmt.Errorf("%w: %q", errTokenAlgorithm, algorithm)
	}
	if v.RequireTokenID && strings.TrimSpace(tok.JwtID()) == "" {
		return errTokenID
	}
	if err := v.checkSubject(tok.Subject()); err != nil {
		return err
	}
	if err := v.checkAge(tok.IssuedAt(), now); err != nil {
		return err
	}

	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(max(v.ClockSkew, 0)),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, opts...)
}

func (v TokenValidator) checkSubject(sub string) error {
	sub = strings.ToLower(strings.TrimSpace(sub))
	if sub == "" {
		return errTokenSubject
	}
	if v.Subject != "" && sub != strings.ToLower(v.Subject) {
		return errTokenSubject
	}
	return nil
}

func (v TokenValidator) checkAge(issuedAt, now time.Time) error {
	if v.MaxAge <= 0 {
		return nil
	}
	if issuedAt.IsZero() {
		return errTokenIssuedAt
	}
	if now.Sub(issuedAt) > v.MaxAge+v.ClockSkew {
		return errTokenTooOld
	}
	return nil
}
