package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-promo/internal/common"
)

const (
	testSecret   = "test-secret-with-enough-entropy"
	testEmail    = "ops@example.com"
	testPassword = "correct horse battery staple"
)

var testParams = &argon2id.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := argon2id.CreateHash(testPassword, testParams)
	require.NoError(t, err)
	svc, err := NewService(Config{
		Secret:            testSecret,
		TokenTTL:          time.Hour,
		ClockSkew:         5 * time.Second,
		AdminEmail:        testEmail,
		AdminPasswordHash: hash,
		Denylist:          RedisDenylist{Client: client},
	})
	require.NoError(t, err)
	return svc, mr
}

func appStatus(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := err.(*common.AppError)
	require.True(t, ok, "expected AppError, got %T", err)
	return appErr.HTTPStatus
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Login(ctx, "  OPS@example.com ", testPassword)
	require.NoError(t, err)
	require.Equal(t, testEmail, session.Email)
	require.NotEmpty(t, session.AccessToken)

	p, err := svc.ParseAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testEmail, p.Subject)
	require.NotEmpty(t, p.TokenID)
	require.WithinDuration(t, session.ExpiresAt, p.ExpiresAt, time.Second)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, testEmail, "wrong")
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))

	_, err = svc.Login(ctx, "intruder@example.com", testPassword)
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))

	_, err = svc.Login(ctx, "", "")
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))
}

func TestLoginDisabledWithoutAdmin(t *testing.T) {
	svc, err := NewService(Config{Secret: testSecret})
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), testEmail, testPassword)
	require.Equal(t, http.StatusServiceUnavailable, appStatus(t, err))
}

func TestParseRejectsExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Now()
	svc.WithNow(func() time.Time { return start })
	session, err := svc.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return start.Add(2 * time.Hour) })
	_, err = svc.ParseAccessToken(context.Background(), session.AccessToken)
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))
}

func TestParseRejectsForeignSignatures(t *testing.T) {
	svc, _ := newTestService(t)
	tok, err := jwt.NewBuilder().
		JwtID("x").
		Subject(testEmail).
		Issuer("storefront-promo").
		Audience([]string{"storefront-admin"}).
		Expiration(time.Now().Add(time.Minute)).
		Build()
	require.NoError(t, err)

	other, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("another-secret")))
	require.NoError(t, err)
	_, err = svc.ParseAccessToken(context.Background(), string(other))
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))

	hs512, err := jwt.Sign(tok, jwt.WithKey(jwa.HS512, []byte(testSecret)))
	require.NoError(t, err)
	_, err = svc.ParseAccessToken(context.Background(), string(hs512))
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))

	_, err = svc.ParseAccessToken(context.Background(), "not-a-token")
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))
}

func TestLogoutRevokesUntilExpiry(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	session, err := svc.Login(ctx, testEmail, testPassword)
	require.NoError(t, err)
	p, err := svc.ParseAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, p))
	_, err = svc.ParseAccessToken(ctx, session.AccessToken)
	require.Equal(t, http.StatusUnauthorized, appStatus(t, err))

	ttl := mr.TTL("auth:revoked:" + p.TokenID)
	require.Greater(t, ttl, 59*time.Minute)
	require.LessOrEqual(t, ttl, time.Hour+5*time.Second)
}

func TestParseFailsClosedWhenDenylistDown(t *testing.T) {
	svc, mr := newTestService(t)
	session, err := svc.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)

	mr.Close()
	_, err = svc.ParseAccessToken(context.Background(), session.AccessToken)
	require.Error(t, err)
	require.False(t, common.IsAppError(err))
}
