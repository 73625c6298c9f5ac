package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusclubs/internal/domain"
)

// ErrInvalidToken is returned for tokens that are malformed, expired, or signed with another key.
var ErrInvalidToken = errors.New("invalid token")

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type jwtVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewJWTVerifier returns a TokenVerifier accepting HS256 tokens signed with secret. The token
// subject becomes the requester's user id and the roles claim its roles.
func NewJWTVerifier(secret string, leeway time.Duration) domain.TokenVerifier {
	return &jwtVerifier{secret: []byte(secret), leeway: leeway}
}

func (v *jwtVerifier) Verify(token string) (*domain.Requester, error) {
	claims := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &domain.Requester{UserID: claims.Subject, Roles: claims.Roles}, nil
}
