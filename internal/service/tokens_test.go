package service

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/kyc-verifier/internal/errs"
)

func TestTokenService_RoundTrip(t *testing.T) {
	t.Parallel()
	s := NewTokenService([]byte("secret"), 10*time.Minute)
	owner := uuid.Must(uuid.NewV4())

	tok, exp, err := s.Issue(owner)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)

	got, err := s.Owner(tok)
	require.NoError(t, err)
	require.Equal(t, owner, got)
}

func TestTokenService_Rejects(t *testing.T) {
	t.Parallel()
	s := NewTokenService([]byte("secret"), time.Minute)
	owner := uuid.Must(uuid.NewV4())

	other := NewTokenService([]byte("other"), time.Minute)
	tok, _, err := other.Issue(owner)
	require.NoError(t, err)
	_, err = s.Owner(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	past := NewTokenService([]byte("secret"), time.Minute)
	past.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, _, err = past.Issue(owner)
	require.NoError(t, err)
	_, err = s.Owner(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	claims := jwt.RegisteredClaims{Subject: "not-a-uuid", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Owner(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   owner.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Owner(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, _, err = s.Issue(uuid.Nil)
	require.Error(t, err)
}
