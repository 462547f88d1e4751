package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Verify for any token that cannot be
// trusted: bad signature, malformed payload, wrong issuer or audience,
// or a lifetime that does not cover the current time.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the identity assertion carried by a bearer token.
type Claims struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed identity tokens. The signing
// algorithm is fixed to HS256; there is no negotiation.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewManager creates a token manager. Secret, issuer, and audience are
// process-wide configuration; an empty value is a configuration error.
func NewManager(secret, issuer, audience string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if issuer == "" {
		return nil, errors.New("token: issuer is required")
	}
	if audience == "" {
		return nil, errors.New("token: audience is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token: ttl must be positive, got %s", ttl)
	}
	return &Manager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// Issue encodes the user's identity as a signed token valid for the
// configured ttl.
func (m *Manager) Issue(user *domain.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("token: user id is required")
	}
	now := time.Now()
	claims := Claims{
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns the decoded claims.
// No claim field may be trusted unless Verify succeeds.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL reports the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
