package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"ontohub/internal/platform/config"
)

const issuer = "ontohub"

var ErrAuthDisabled = errors.New("token signing disabled: jwt.secret is empty")

// Claims identify an operator of the management API.
type Claims struct {
	Operator string   `json:"op"`
	Scopes   []string `json:"scp,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{config: cfg}
}

// Enabled reports whether a signing secret is configured.
func (s *TokenService) Enabled() bool {
	return s.config.Secret != ""
}

func (s *TokenService) GenerateAccessToken(operator string, scopes []string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}

	ttl := s.config.AccessTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := Claims{
		Operator: operator,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
