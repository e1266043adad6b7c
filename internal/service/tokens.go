package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/kyc-verifier/internal/errs"
)

// TokenService issues and checks the HS256 bearer tokens that carry owner identity.
type TokenService interface {
	// Issue signs a token whose subject is ownerID.
	Issue(ownerID uuid.UUID) (token string, expiresAt time.Time, err error)
	// Owner verifies token and returns its subject. Failures wrap errs.ErrUnauthorized.
	Owner(token string) (uuid.UUID, error)
}

type TokenServiceImpl struct {
	signKey []byte
	ttl     time.Duration
	leeway  time.Duration
	now     func() time.Time
}

// NewTokenService constructs a TokenService. ttl <= 0 means one hour.
func NewTokenService(signKey []byte, ttl time.Duration) *TokenServiceImpl {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenServiceImpl{signKey: signKey, ttl: ttl, leeway: 30 * time.Second, now: time.Now}
}

func (s *TokenServiceImpl) Issue(ownerID uuid.UUID) (string, time.Time, error) {
	if ownerID == uuid.Nil {
		return "", time.Time{}, errors.New("validation: empty owner id")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   ownerID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	return signed, exp, err
}

func (s *TokenServiceImpl) Owner(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}
