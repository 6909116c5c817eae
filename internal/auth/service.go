package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/playmate/playmate/internal/identity"
)

// ErrInvalidToken is returned for malformed, expired or tampered tokens.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller as carried by an access token.
type Principal struct {
	ID       int64         `json:"id"`
	Username string        `json:"username"`
	Role     identity.Role `json:"role"`
}

// IsAdmin reports whether the principal has the admin capability.
func (p Principal) IsAdmin() bool { return p.Role == identity.RoleAdmin }

// Claims is the JWT payload.
type Claims struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Service signs and verifies HS256 access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an access token for user.
func (s *Service) Issue(user identity.User) (Token, error) {
	now := s.now()
	claims := Claims{
		ID:       user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify parses tokenStr and returns the principal it carries.
func (s *Service) Verify(tokenStr string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID <= 0 {
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: claims.ID, Username: claims.Username, Role: identity.Role(claims.Role)}, nil
}
