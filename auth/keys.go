package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleAnon    Role = "anon"
	RoleService Role = "service_role"
)

var (
	ErrMissingKey = errors.New("no access key provided")
	ErrInvalidKey = errors.New("invalid access key")
)

// Claims carries the role an access key grants
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAnon, RoleService:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q, expected %s or %s", s, RoleAnon, RoleService)
	}
}

// GenerateKey signs an access key, a zero validity never expires
func GenerateKey(role Role, secret []byte, validity time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "noticeboard",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	if validity != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validity))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the signature and expiry of key and returns its role
func Verify(key string, secret []byte) (Role, error) {
	if key == "" {
		return "", ErrMissingKey
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(key, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if !token.Valid {
		return "", ErrInvalidKey
	}

	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return role, nil
}

// KeyFromHeaders picks the access key from an apikey header or a bearer token
func KeyFromHeaders(apikey, authorization string) string {
	if apikey != "" {
		return apikey
	}
	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
