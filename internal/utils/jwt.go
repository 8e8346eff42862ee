package utils

import (
	"errors"
	"fmt"
	"time"

	"clinic-app-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrRoleMismatch     = errors.New("token role does not match")
	ErrMissingSecret    = errors.New("jwt secret not configured")
	ErrUnknownRole      = errors.New("unknown token role")
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims represents the JWT claims.
type Claims struct {
	PrincipalID string      `json:"id"`
	Role        models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies bearer tokens. Each role signs with its own
// secret. Tokens are stateless: nothing is stored server side, so a token stays
// valid until it expires.
type TokenService struct {
	secrets map[models.Role]string
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenService creates a TokenService. Empty secrets are allowed here and
// reported as ErrMissingSecret when a token for that role is issued or verified.
func NewTokenService(patientSecret, adminSecret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secrets: map[models.Role]string{
			models.RolePatient: patientSecret,
			models.RoleAdmin:   adminSecret,
		},
		ttl: ttl,
		now: time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) secretFor(role models.Role) ([]byte, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, role)
	}
	secret := s.secrets[role]
	if secret == "" {
		return nil, fmt.Errorf("%w for role %q", ErrMissingSecret, role)
	}
	return []byte(secret), nil
}

// Issue signs a token for the principal that expires after the configured TTL.
func (s *TokenService) Issue(principalID string, role models.Role) (string, error) {
	secret, err := s.secretFor(role)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := &Claims{
		PrincipalID: principalID,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// pastExpiry reports whether the unverified exp claim of tokenString is in the
// past. An expired token is reported as expired even when its signature is bad.
func (s *TokenService) pastExpiry(tokenString string) bool {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !s.now().Before(claims.ExpiresAt.Time)
}

// Verify checks the signature and expiry of tokenString against the secret of
// role and then that the token was issued for role.
func (s *TokenService) Verify(tokenString string, role models.Role) (*Claims, error) {
	secret, err := s.secretFor(role)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || s.pastExpiry(tokenString) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	if claims.Role != role {
		return nil, ErrRoleMismatch
	}
	return claims, nil
}
