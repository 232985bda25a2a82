package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer = "bookvault"
	defaultTTL    = 7 * 24 * time.Hour
	defaultLeeway = 30 * time.Second
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenSubjectMissing is returned when a valid token carries no subject.
	ErrTokenSubjectMissing = errors.New("token subject missing")
)

// TokenManager issues and verifies HS256 bearer tokens whose subject is the
// authenticated user id.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
}

// NewTokenManager creates a manager with the shared signing secret.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		leeway: defaultLeeway,
	}, nil
}

// Issue signs a token for the given user id.
func (m *TokenManager) Issue(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifySubject validates the token and returns its subject user id.
func (m *TokenManager) VerifySubject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrTokenSubjectMissing
	}
	return subject, nil
}
