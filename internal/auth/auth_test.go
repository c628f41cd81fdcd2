package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestIssueVerify(t *testing.T) {
	tok, err := Issue(secret, 42, "kim@example.com", "user", time.Hour)
	require.NoError(t, err)

	claims, err := NewVerifier(secret).Verify(tok)
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.Sub)
	require.Equal(t, "kim@example.com", claims.Email)
	require.Equal(t, "user", claims.Role)
	require.NotNil(t, claims.ExpiresAt)
}

func TestIssueAlwaysSetsExpiry(t *testing.T) {
	for _, ttl := range []time.Duration{-time.Minute, time.Minute} {
		tok, err := Issue(secret, 1, "", "", ttl)
		require.NoError(t, err)

		var claims Claims
		_, _, err = jwt.NewParser().ParseUnverified(tok, &claims)
		require.NoError(t, err)
		require.NotNil(t, claims.ExpiresAt, "ttl %s", ttl)
		require.WithinDuration(t, time.Now().Add(ttl), claims.ExpiresAt.Time, 2*time.Second)
	}

	expired, err := Issue(secret, 1, "", "", -time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier(secret).Verify(expired)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(secret)

	expired, err := Issue(secret, 1, "", "", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := Issue([]byte("other"), 1, "", "", time.Hour)
	require.NoError(t, err)
	noSubject, err := Issue(secret, 0, "", "", time.Hour)
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Sub: 1}).SignedString(secret)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Sub: 1}).SignedString(secret)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.jwt",
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"hs512":      hs512,
		"no expiry":  noExpiry,
	} {
		_, err := v.Verify(tok)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrUnauthorized), name)
	}
}

func TestSubjectAcceptsNumericString(t *testing.T) {
	var c Claims
	require.NoError(t, json.Unmarshal([]byte(`{"sub":"17","email":"a@b"}`), &c))
	require.EqualValues(t, 17, c.Sub)
	require.Error(t, json.Unmarshal([]byte(`{"sub":"abc"}`), &c))
}

type mapDirectory map[int64]bool

func (m mapDirectory) Exists(_ context.Context, id int64) (bool, error) { return m[id], nil }

type brokenDirectory struct{}

func (brokenDirectory) Exists(context.Context, int64) (bool, error) {
	return false, errors.New("db down")
}

func TestGateAuthenticate(t *testing.T) {
	tok, err := Issue(secret, 5, "p@example.com", "admin", time.Hour)
	require.NoError(t, err)
	gate := NewGate(NewVerifier(secret), mapDirectory{5: true})
	ctx := context.Background()

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	p, err := gate.Authenticate(ctx, r)
	require.NoError(t, err)
	require.EqualValues(t, 5, p.ID)
	require.Equal(t, "admin", p.Role)

	r = httptest.NewRequest("GET", "/ws?access_token="+tok, nil)
	p, err = gate.Authenticate(ctx, r)
	require.NoError(t, err)
	require.EqualValues(t, 5, p.ID)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, err = gate.Authenticate(ctx, r)
	require.ErrorIs(t, err, ErrUnauthorized)

	other, err := Issue(secret, 6, "", "", time.Hour)
	require.NoError(t, err)
	r = httptest.NewRequest("GET", "/ws?access_token="+other, nil)
	_, err = gate.Authenticate(ctx, r)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewGate(NewVerifier(secret), brokenDirectory{}).Authenticate(ctx, r)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnauthorized))

	p, err = NewGate(NewVerifier(secret), nil).Authenticate(ctx, r)
	require.NoError(t, err)
	require.EqualValues(t, 6, p.ID)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?access_token=q", nil)
	require.Equal(t, "q", TokenFromRequest(r))
	r.Header.Set("Authorization", "bearer h")
	require.Equal(t, "h", TokenFromRequest(r))
	r.Header.Set("Authorization", "Basic abc")
	require.Equal(t, "q", TokenFromRequest(r))
}

func TestPostgresDirectory(t *testing.T) {
	url := os.Getenv("ARENA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ARENA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	dir, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	// temp tables are per connection
	dir.db.SetMaxOpenConns(1)

	_, err = dir.db.ExecContext(ctx, `CREATE TEMP TABLE users (id BIGINT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = dir.db.ExecContext(ctx, `INSERT INTO users (id) VALUES (1)`)
	require.NoError(t, err)

	ok, err := dir.Exists(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = dir.Exists(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)
}
